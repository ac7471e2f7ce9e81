package humayat

import (
	"time"
)

const (
	DefaultAttribution = "Anonymous"
	DefaultTitle       = "Untitled"
)

// Image is the metadata record of an uploaded photo as served by the backend.
type Image struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	MediaRef   string    `json:"mediaRef"`
	UploadedBy string    `json:"uploadedBy"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ImageEventType string

const (
	ImageCreated ImageEventType = "created"
	ImageDeleted ImageEventType = "deleted"
)

// ImageEvent is pushed to realtime subscribers whenever the catalog changes server side.
type ImageEvent struct {
	Type      ImageEventType `json:"type"`
	Image     Image          `json:"image"`
	Timestamp time.Time      `json:"timestamp"`
}

type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    float64   `json:"uptime"`
	Database  string    `json:"database"`
	Media     string    `json:"media"`
}

type DeleteResult struct {
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Upload is an image payload selected for upload.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (u Upload) Size() int64 {
	return int64(len(u.Data))
}

// MIME returns the declared content type, or the sniffed one when none was declared.
func (u Upload) MIME() string {
	if u.ContentType != "" {
		return normalizeMime(u.ContentType)
	}
	return DetectMIME(u.Data)
}

// Validate runs ValidateUpload against the payload.
func (u Upload) Validate() error {
	return ValidateUpload(u.Size(), u.MIME())
}
