package chat

import (
	"errors"
	"time"
)

// Message validation errors.
var (
	ErrMessageNoBody    = errors.New("message has neither content nor image")
	ErrMessageAmbiguous = errors.New("message has both content and image")
	ErrMessageNoSender  = errors.New("message has no sender")
)

// Room represents a chat room.
//
// ID keys the room's message collection and Key keys its typing-presence
// collection. They name the same room in two different collections and are
// not interchangeable.
type Room struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Sender is the snapshot of a user's profile captured when a message is sent.
// It is never updated after the fact.
type Sender struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Image string `json:"image,omitempty"`
}

// MessageKind tells the text and image variants of a Message apart.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindImage MessageKind = "image"
)

// Message is a chat message. Exactly one of Content and Image is set.
//
// Key and Timestamp are assigned by the store: Key is the entry key the
// message was pushed under, Timestamp the server write time in milliseconds.
type Message struct {
	Key       string `json:"key,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	User      Sender `json:"user"`
	Content   string `json:"content,omitempty"`
	Image     string `json:"image,omitempty"`
}

// NewTextMessage builds a text message from sender.
func NewTextMessage(sender Sender, content string) Message {
	return Message{User: sender, Content: content}
}

// NewImageMessage builds an image message pointing at url.
func NewImageMessage(sender Sender, url string) Message {
	return Message{User: sender, Image: url}
}

// Kind reports which variant the message is.
func (m Message) Kind() MessageKind {
	if m.Image != "" {
		return KindImage
	}
	return KindText
}

// Text returns the message content and true for text messages.
func (m Message) Text() (string, bool) {
	if m.Kind() != KindText {
		return "", false
	}
	return m.Content, true
}

// Validate checks that exactly one variant is populated.
func (m Message) Validate() error {
	switch {
	case m.User.ID == "":
		return ErrMessageNoSender
	case m.Content == "" && m.Image == "":
		return ErrMessageNoBody
	case m.Content != "" && m.Image != "":
		return ErrMessageAmbiguous
	}
	return nil
}

// TypingEntry marks a user as currently composing in a room.
type TypingEntry struct {
	UserID string    `json:"user_id"`
	Name   string    `json:"name"`
	SeenAt time.Time `json:"seen_at"`
}
