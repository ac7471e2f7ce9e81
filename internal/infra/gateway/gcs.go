package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	pkgerrors "github.com/pkg/errors"
	"google.golang.org/api/option"

	"github.com/totegamma/humayat"
	"github.com/totegamma/humayat/internal/domain"
)

type GCSConfig struct {
	Bucket          string
	CredentialsFile string
	PublicBaseURL   string
	// Endpoint points the client at an emulator. Requests are then unauthenticated.
	Endpoint string
}

// GCSGateway stores binaries as objects in a Google Cloud Storage bucket.
// The object name is the MediaRef.
type GCSGateway struct {
	client  *storage.Client
	bucket  string
	baseURL string
}

func NewGCSGateway(ctx context.Context, config GCSConfig) (*GCSGateway, error) {
	if config.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	if config.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(config.Endpoint), option.WithoutAuthentication())
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	baseURL := strings.TrimRight(config.PublicBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com/" + config.Bucket
	}

	return &GCSGateway{
		client:  client,
		bucket:  config.Bucket,
		baseURL: baseURL,
	}, nil
}

func (g *GCSGateway) Upload(ctx context.Context, key, contentType string, data []byte) (domain.Media, error) {
	ctx, span := tracer.Start(ctx, "GCS.Gateway.Upload")
	defer span.End()

	name := key + humayat.ExtensionFor(contentType)
	writer := g.client.Bucket(g.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "public, max-age=31536000, immutable"

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		span.RecordError(pkgerrors.Wrap(err, "GCSGateway.Upload: write failed"))
		return domain.Media{}, &humayat.UpstreamServiceError{Service: "gcs", Message: err.Error()}
	}
	if err := writer.Close(); err != nil {
		span.RecordError(pkgerrors.Wrap(err, "GCSGateway.Upload: close failed"))
		return domain.Media{}, &humayat.UpstreamServiceError{Service: "gcs", Message: err.Error()}
	}

	return domain.Media{URL: g.objectURL(name), Ref: name}, nil
}

// Delete removes the object. An object that is already gone counts as deleted.
func (g *GCSGateway) Delete(ctx context.Context, ref string) error {
	ctx, span := tracer.Start(ctx, "GCS.Gateway.Delete")
	defer span.End()

	err := g.client.Bucket(g.bucket).Object(ref).Delete(ctx)
	if err == nil || errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	span.RecordError(pkgerrors.Wrap(err, "GCSGateway.Delete"))
	return &humayat.UpstreamServiceError{Service: "gcs", Message: err.Error()}
}

func (g *GCSGateway) Ping(ctx context.Context) error {
	_, err := g.client.Bucket(g.bucket).Attrs(ctx)
	return err
}

func (g *GCSGateway) Close() error {
	return g.client.Close()
}

func (g *GCSGateway) objectURL(name string) string {
	segments := strings.Split(name, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return g.baseURL + "/" + strings.Join(segments, "/")
}
