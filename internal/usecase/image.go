package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/humayat"
	"github.com/totegamma/humayat/internal/domain"
)

var tracer = otel.Tracer("usecase")

type ImageUsecase struct {
	repo     ImageRepository
	media    MediaGateway
	events   EventPublisher
	observer Observer
	folder   string
	maxBytes int64
	started  time.Time
	now      func() time.Time
}

type ImageOptions struct {
	Events   EventPublisher
	Observer Observer
	Folder   string
	MaxBytes int64
	Now      func() time.Time
}

func NewImageUsecase(repo ImageRepository, media MediaGateway, opts ImageOptions) *ImageUsecase {
	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 || maxBytes > humayat.MaxUploadSize {
		maxBytes = humayat.MaxUploadSize
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ImageUsecase{
		repo:     repo,
		media:    media,
		events:   opts.Events,
		observer: observer,
		folder:   strings.Trim(opts.Folder, "/"),
		maxBytes: maxBytes,
		started:  now(),
		now:      now,
	}
}

// List returns every image, newest first.
func (uc *ImageUsecase) List(ctx context.Context) ([]domain.Image, error) {
	ctx, span := tracer.Start(ctx, "Image.Usecase.List")
	defer span.End()

	images, err := uc.repo.List(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "failed to list images")
	}
	return images, nil
}

func (uc *ImageUsecase) Get(ctx context.Context, id string) (domain.Image, error) {
	ctx, span := tracer.Start(ctx, "Image.Usecase.Get")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	image, err := uc.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Image{}, err
	}
	return image, nil
}

// Upload validates the payload, stores the binary at the media service and
// then records its metadata. When the metadata write fails the binary is
// removed again on a best-effort basis.
func (uc *ImageUsecase) Upload(ctx context.Context, input domain.NewImage) (domain.Image, error) {
	ctx, span := tracer.Start(ctx, "Image.Usecase.Upload")
	defer span.End()

	contentType := humayat.DetectMIME(input.Data)
	size := int64(len(input.Data))
	if size > uc.maxBytes {
		err := &humayat.ValidationError{Field: "image", Reason: fmt.Sprintf("file is %d bytes, limit is %d", size, uc.maxBytes)}
		uc.observer.UploadRejected("size")
		span.RecordError(err)
		return domain.Image{}, err
	}
	if err := humayat.ValidateUpload(size, contentType); err != nil {
		uc.observer.UploadRejected("type")
		span.RecordError(err)
		return domain.Image{}, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = humayat.DefaultTitle
	}
	uploadedBy := strings.TrimSpace(input.UploadedBy)
	if uploadedBy == "" {
		uploadedBy = humayat.DefaultAttribution
	}

	id := uuid.NewString()
	key := uc.mediaKey(id, input.Data)
	span.SetAttributes(attribute.String("id", id), attribute.String("key", key))

	media, err := uc.media.Upload(ctx, key, contentType, input.Data)
	if err != nil {
		span.RecordError(errors.Wrap(err, "ImageUsecase.Upload: media.Upload failed"))
		return domain.Image{}, asUpstream("media", err)
	}

	created, err := uc.repo.Create(ctx, domain.Image{
		ID:         id,
		Title:      title,
		URL:        media.URL,
		MediaRef:   media.Ref,
		UploadedBy: uploadedBy,
		CreatedAt:  uc.now(),
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "ImageUsecase.Upload: repo.Create failed"))
		if derr := uc.media.Delete(ctx, media.Ref); derr != nil {
			uc.observer.MediaDeleteFailed()
			slog.WarnContext(
				ctx, "failed to remove orphaned media",
				slog.String("ref", media.Ref),
				slog.String("error", derr.Error()),
				slog.String("module", "usecase"),
			)
		}
		return domain.Image{}, errors.Wrap(err, "failed to save image")
	}

	uc.observer.ImageUploaded()
	uc.publish(ctx, humayat.ImageCreated, created)
	return created, nil
}

// Delete removes the binary first and the metadata second. A media failure is
// logged and does not stop the metadata removal; a metadata failure is returned.
func (uc *ImageUsecase) Delete(ctx context.Context, id string) (domain.Image, error) {
	ctx, span := tracer.Start(ctx, "Image.Usecase.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("id", id))

	image, err := uc.repo.Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Image{}, err
	}

	if image.MediaRef != "" {
		if err := uc.media.Delete(ctx, image.MediaRef); err != nil {
			uc.observer.MediaDeleteFailed()
			span.RecordError(errors.Wrap(err, "ImageUsecase.Delete: media.Delete failed"))
			slog.WarnContext(
				ctx, "media delete failed, removing metadata anyway",
				slog.String("id", id),
				slog.String("ref", image.MediaRef),
				slog.String("error", err.Error()),
				slog.String("module", "usecase"),
			)
		}
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		if humayat.IsNotFound(err) {
			return domain.Image{}, err
		}
		return domain.Image{}, errors.Wrap(err, "failed to delete image")
	}

	uc.observer.ImageDeleted()
	uc.publish(ctx, humayat.ImageDeleted, image)
	return image, nil
}

func (uc *ImageUsecase) Health(ctx context.Context) domain.Health {
	ctx, span := tracer.Start(ctx, "Image.Usecase.Health")
	defer span.End()

	health := domain.Health{
		Database: uc.repo.Ping(ctx) == nil,
		Media:    uc.media.Ping(ctx) == nil,
		Uptime:   uc.now().Sub(uc.started),
	}
	return health
}

func (uc *ImageUsecase) mediaKey(id string, data []byte) string {
	name := fmt.Sprintf("%s-%016x", id, xxh3.Hash(data))
	if uc.folder == "" {
		return name
	}
	return uc.folder + "/" + name
}

func (uc *ImageUsecase) publish(ctx context.Context, eventType humayat.ImageEventType, image domain.Image) {
	if uc.events == nil {
		return
	}
	err := uc.events.Publish(ctx, humayat.ImageEvent{
		Type:      eventType,
		Image:     image.Wire(),
		Timestamp: uc.now(),
	})
	if err != nil {
		slog.WarnContext(
			ctx, "failed to publish image event",
			slog.String("type", string(eventType)),
			slog.String("error", err.Error()),
			slog.String("module", "usecase"),
		)
	}
}

func asUpstream(service string, err error) error {
	if humayat.KindOf(err) != 0 {
		return err
	}
	return &humayat.UpstreamServiceError{Service: service, Message: err.Error()}
}
