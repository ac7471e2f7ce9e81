package usecase

import (
	"context"

	"github.com/totegamma/humayat"
	"github.com/totegamma/humayat/internal/domain"
)

// ImageRepository defines storage operations for image metadata.
type ImageRepository interface {
	List(ctx context.Context) ([]domain.Image, error)
	Get(ctx context.Context, id string) (domain.Image, error)
	Create(ctx context.Context, image domain.Image) (domain.Image, error)
	Delete(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// MediaGateway stores and removes binaries at the hosted media service.
type MediaGateway interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (domain.Media, error)
	Delete(ctx context.Context, ref string) error
	Ping(ctx context.Context) error
}

// EventPublisher fans image events out to realtime subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event humayat.ImageEvent) error
}

// Observer receives counters for notable outcomes.
type Observer interface {
	ImageUploaded()
	ImageDeleted()
	UploadRejected(reason string)
	MediaDeleteFailed()
}

type nopObserver struct{}

func (nopObserver) ImageUploaded()        {}
func (nopObserver) ImageDeleted()         {}
func (nopObserver) UploadRejected(string) {}
func (nopObserver) MediaDeleteFailed()    {}
