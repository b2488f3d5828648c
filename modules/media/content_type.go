package media

import (
	"path/filepath"
	"strings"
)

const defaultContentType = "application/octet-stream"

// contentTypeByExt maps file extensions to MIME types.
var contentTypeByExt = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jfif": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".ico":  "image/vnd.microsoft.icon",
	".avif": "image/avif",
	".heic": "image/heic",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".json": "application/json",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".zip":  "application/zip",
}

// DetectContentType determines the content type based on file extension.
func DetectContentType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if contentType, ok := contentTypeByExt[ext]; ok {
		return contentType
	}
	return defaultContentType
}

// IsImage reports whether the content type is an image type.
func IsImage(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}
