package humayat

import (
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxUploadSize is the largest accepted image payload (10 MiB).
const MaxUploadSize int64 = 10 << 20

var allowedMimeTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// IsAllowedMimeType reports whether mimeType is one of jpeg, png or gif.
func IsAllowedMimeType(mimeType string) bool {
	_, ok := allowedMimeTypes[normalizeMime(mimeType)]
	return ok
}

// ExtensionFor returns the file extension used when storing the given type.
func ExtensionFor(mimeType string) string {
	return allowedMimeTypes[normalizeMime(mimeType)]
}

// ValidateUpload runs the local pre-checks every upload must pass.
func ValidateUpload(size int64, mimeType string) error {
	if size <= 0 {
		return &ValidationError{Field: "image", Reason: "file is empty"}
	}
	if size > MaxUploadSize {
		return &ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("file is %d bytes, limit is %d", size, MaxUploadSize),
		}
	}
	if !IsAllowedMimeType(mimeType) {
		return &ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("unsupported type %q, only jpeg, png and gif are allowed", mimeType),
		}
	}
	return nil
}

// DetectMIME sniffs the content type of data.
func DetectMIME(data []byte) string {
	return normalizeMime(mimetype.Detect(data).String())
}

func normalizeMime(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	if mimeType == "image/jpg" || mimeType == "image/pjpeg" {
		return "image/jpeg"
	}
	return mimeType
}
