package chatview

// NoticeKind classifies a Notice.
type NoticeKind string

const (
	NoticeValidation      NoticeKind = "validation"
	NoticeWriteFailed     NoticeKind = "write_failed"
	NoticeUploadFailed    NoticeKind = "upload_failed"
	NoticeSubscribeFailed NoticeKind = "subscribe_failed"
)

// Notice is a non-blocking, dismissible message for the user.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

// Error returns the notice text, including the cause if any.
func (n Notice) Error() string {
	if n.Err == nil {
		return n.Message
	}
	return n.Message + ": " + n.Err.Error()
}
