package gateway

import (
	"bytes"
	"context"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/cloudinary/cloudinary-go/v2/config"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/humayat"
	"github.com/totegamma/humayat/internal/domain"
)

var tracer = otel.Tracer("gateway")

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
	// Endpoint overrides the API host, e.g. for a local stand-in.
	Endpoint string
	Timeout  time.Duration
}

// CloudinaryGateway stores binaries as Cloudinary assets.
// The media key becomes the asset's public_id, which is also its MediaRef.
type CloudinaryGateway struct {
	cld     *cloudinary.Cloudinary
	timeout time.Duration
}

func NewCloudinaryGateway(conf CloudinaryConfig) (*CloudinaryGateway, error) {
	cldConfig, err := config.NewFromParams(conf.CloudName, conf.APIKey, conf.APISecret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to configure cloudinary")
	}
	if conf.Endpoint != "" {
		cldConfig.API.UploadPrefix = conf.Endpoint
	}

	cld, err := cloudinary.NewFromConfiguration(*cldConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create cloudinary client")
	}

	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &CloudinaryGateway{cld: cld, timeout: timeout}, nil
}

func (g *CloudinaryGateway) Upload(ctx context.Context, key, contentType string, data []byte) (domain.Media, error) {
	ctx, span := tracer.Start(ctx, "Cloudinary.Gateway.Upload")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		PublicID: key,
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "CloudinaryGateway.Upload"))
		return domain.Media{}, &humayat.UpstreamServiceError{Service: "cloudinary", Message: err.Error()}
	}
	if result.Error.Message != "" {
		span.RecordError(errors.New("CloudinaryGateway.Upload: " + result.Error.Message))
		return domain.Media{}, &humayat.UpstreamServiceError{Service: "cloudinary", Message: result.Error.Message}
	}

	location := result.SecureURL
	if location == "" {
		location = result.URL
	}
	ref := result.PublicID
	if ref == "" {
		ref = key
	}
	return domain.Media{URL: location, Ref: ref}, nil
}

// Delete destroys the asset. An asset that is already gone counts as deleted.
func (g *CloudinaryGateway) Delete(ctx context.Context, ref string) error {
	ctx, span := tracer.Start(ctx, "Cloudinary.Gateway.Delete")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:   ref,
		Invalidate: api.Bool(true),
	})
	if err != nil {
		span.RecordError(errors.Wrap(err, "CloudinaryGateway.Delete"))
		return &humayat.UpstreamServiceError{Service: "cloudinary", Message: err.Error()}
	}
	if result.Error.Message != "" {
		return &humayat.UpstreamServiceError{Service: "cloudinary", Message: result.Error.Message}
	}

	switch result.Result {
	case "ok", "not found":
		return nil
	default:
		return &humayat.UpstreamServiceError{Service: "cloudinary", Message: "destroy returned " + result.Result}
	}
}

func (g *CloudinaryGateway) Ping(ctx context.Context) error {
	result, err := g.cld.Admin.Ping(ctx)
	if err != nil {
		return &humayat.UpstreamServiceError{Service: "cloudinary", Message: err.Error()}
	}
	if result.Error.Message != "" {
		return &humayat.UpstreamServiceError{Service: "cloudinary", Message: result.Error.Message}
	}
	return nil
}
