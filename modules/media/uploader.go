package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Upload errors.
var (
	ErrNoFile      = errors.New("no file selected")
	ErrInvalidName = errors.New("invalid file name")
	ErrNotImage    = errors.New("file is not an image")
)

// StoragePrefix is the object name prefix used for message images.
const StoragePrefix = "message/"

// Object describes an uploaded object and where it can be downloaded.
type Object struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
	URL          string `json:"url"`
}

// Uploader stores message images and resolves their public download URL.
type Uploader struct {
	store   ObjectStore
	baseURL string
}

// NewUploader creates an uploader serving downloads under baseURL + "/media/".
func NewUploader(store ObjectStore, baseURL string) *Uploader {
	return &Uploader{
		store:   store,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Upload streams r to object storage under a collision-free name derived
// from originalName. Only image types are accepted. progress may be nil.
func (u *Uploader) Upload(ctx context.Context, originalName string, r io.Reader, size int64, progress ProgressFunc) (*Object, error) {
	if r == nil {
		return nil, ErrNoFile
	}
	safeName := sanitizeFilename(originalName)
	if safeName == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, originalName)
	}

	contentType := DetectContentType(safeName)
	if !IsImage(contentType) {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNotImage, safeName, contentType)
	}
	name := StorageName(safeName)

	info, err := u.store.Put(ctx, name, r, size, contentType, progress)
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s: %w", safeName, err)
	}

	return &Object{
		Name:         info.Name,
		OriginalName: safeName,
		ContentType:  contentType,
		Size:         int64(info.Size),
		URL:          u.DownloadURL(info.Name),
	}, nil
}

// DownloadURL returns the public URL of a stored object.
func (u *Uploader) DownloadURL(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return u.baseURL + "/media/" + strings.Join(segments, "/")
}

// Open returns a reader for a stored object.
func (u *Uploader) Open(ctx context.Context, name string) (io.ReadCloser, *ObjectInfo, error) {
	return u.store.Get(ctx, name)
}

// Stat returns the metadata of a stored object without reading it.
func (u *Uploader) Stat(ctx context.Context, name string) (*ObjectInfo, error) {
	return u.store.GetInfo(ctx, name)
}

// Discard removes a stored object. A missing object is not an error.
func (u *Uploader) Discard(ctx context.Context, name string) error {
	if err := u.store.Delete(ctx, name); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return err
	}
	return nil
}

// StorageName prefixes a random identifier to the file name so that uploads
// of the same file never collide.
func StorageName(filename string) string {
	return fmt.Sprintf("%s%s-%s", StoragePrefix, uuid.New().String(), filename)
}

// sanitizeFilename removes path components and separators from filename.
func sanitizeFilename(filename string) string {
	clean := filepath.Base(filepath.Clean(strings.ReplaceAll(filename, "\\", "/")))
	clean = strings.ReplaceAll(clean, "/", "_")
	if clean == "." || clean == ".." || clean == "/" {
		return ""
	}
	return strings.TrimSpace(clean)
}
