package domain

import (
	"time"

	"github.com/totegamma/humayat"
)

// Image is the metadata record of a stored photo.
type Image struct {
	ID         string
	Title      string
	URL        string
	MediaRef   string
	UploadedBy string
	CreatedAt  time.Time
}

func (i Image) Wire() humayat.Image {
	return humayat.Image{
		ID:         i.ID,
		Title:      i.Title,
		URL:        i.URL,
		MediaRef:   i.MediaRef,
		UploadedBy: i.UploadedBy,
		CreatedAt:  i.CreatedAt,
	}
}

// NewImage is an accepted upload waiting to be stored.
type NewImage struct {
	Title       string
	UploadedBy  string
	Filename    string
	ContentType string
	Data        []byte
}

// Media is the location of a binary held by the media service.
type Media struct {
	URL string
	Ref string
}

type Health struct {
	Database bool
	Media    bool
	Uptime   time.Duration
}
