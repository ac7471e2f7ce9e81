package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/patrickmn/go-cache"

	"github.com/totegamma/humayat"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "humayat-client/1.0"
	maxErrorBody     = 4 << 10
)

// Client talks to the humayat backend. Transient failures are retried according
// to the configured RetryPolicy; every other failure is returned immediately.
type Client struct {
	client    *http.Client
	transport http.RoundTripper
	cache     *cache.Cache
	userAgent string
	baseURL   string
	retry     RetryPolicy
	newTimer  func() backoff.Timer
	logger    *slog.Logger
}

type Options struct {
	Timeout time.Duration
	Retry   *RetryPolicy
	// NewTimer supplies the timer used to wait between attempts. Nil uses the
	// system clock.
	NewTimer  func() backoff.Timer
	Transport http.RoundTripper
	UserAgent string
	Logger    *slog.Logger
}

func New(baseURL string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	policy := DefaultRetryPolicy()
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := http.Client{
		Timeout: timeout,
	}

	c := &Client{
		client:    &httpClient,
		transport: transport,
		cache:     cache.New(10*time.Minute, 15*time.Minute),
		userAgent: userAgent,
		baseURL:   strings.TrimRight(baseURL, "/"),
		retry:     policy,
		newTimer:  opts.NewTimer,
		logger:    logger.With(slog.String("module", "client")),
	}
	httpClient.Transport = c
	return c
}

func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	return c.transport.RoundTrip(req)
}

// List returns every image, newest first.
func (c *Client) List(ctx context.Context) ([]humayat.Image, error) {
	var images []humayat.Image
	err := c.do(ctx, "list images", "", http.StatusOK, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/images", nil)
	}, &images)
	if err != nil {
		return nil, err
	}
	if images == nil {
		images = []humayat.Image{}
	}
	return images, nil
}

// Get returns a single image. Images never change once created, so hits are cached.
func (c *Client) Get(ctx context.Context, id string) (humayat.Image, error) {
	cacheKey := "image:" + id
	if x, found := c.cache.Get(cacheKey); found {
		return x.(humayat.Image), nil
	}

	var image humayat.Image
	err := c.do(ctx, "get image", id, http.StatusOK, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.imageURL(id), nil)
	}, &image)
	if err != nil {
		return humayat.Image{}, err
	}

	c.cache.Set(cacheKey, image, cache.DefaultExpiration)
	return image, nil
}

// Create uploads the payload together with its metadata. The payload is validated
// locally first; an invalid payload never reaches the network.
func (c *Client) Create(ctx context.Context, upload humayat.Upload, title, attribution string) (humayat.Image, error) {
	if err := upload.Validate(); err != nil {
		return humayat.Image{}, err
	}

	contentType := upload.MIME()
	filename := upload.Filename
	if filename == "" {
		filename = "upload" + humayat.ExtensionFor(contentType)
	}

	var image humayat.Image
	err := c.do(ctx, "upload image", "", http.StatusCreated, func(ctx context.Context) (*http.Request, error) {
		body, formType, err := encodeUpload(upload.Data, filename, contentType, title, attribution)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/images/upload", body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", formType)
		return req, nil
	}, &image)
	if err != nil {
		return humayat.Image{}, err
	}

	c.cache.Set("image:"+image.ID, image, cache.DefaultExpiration)
	return image, nil
}

// Delete removes the image. A NotFoundError means the image was already gone.
func (c *Client) Delete(ctx context.Context, id string) error {
	defer c.cache.Delete("image:" + id)

	var result humayat.DeleteResult
	return c.do(ctx, "delete image", id, http.StatusOK, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodDelete, c.imageURL(id), nil)
	}, &result)
}

func (c *Client) imageURL(id string) string {
	return c.baseURL + "/api/images/" + url.PathEscape(id)
}

func (c *Client) do(
	ctx context.Context,
	op string,
	id string,
	expect int,
	build func(ctx context.Context) (*http.Request, error),
	result any,
) error {
	notify := func(err error, wait time.Duration) {
		c.logger.DebugContext(ctx, "retrying request",
			slog.String("op", op),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	attempts, err := retry(ctx, c.retry, timer, notify, func(ctx context.Context) error {
		req, err := build(ctx)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			c.logger.DebugContext(ctx, "request failed", slog.String("op", op), slog.String("error", err.Error()))
			return classifyTransport(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != expect {
			return statusError(resp, id)
		}

		if result == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &humayat.UpstreamServiceError{
				Service:    "humayat",
				StatusCode: resp.StatusCode,
				Message:    "malformed response body: " + err.Error(),
			}
		}
		return nil
	})
	if err == nil {
		return nil
	}

	if humayat.KindOf(err) != 0 {
		return err
	}

	c.logger.WarnContext(ctx, "request gave up",
		slog.String("op", op),
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
	cause := err
	var t *transientError
	if errors.As(err, &t) {
		cause = t.err
	}
	return &humayat.TransportError{Op: op, Attempts: attempts, Err: cause}
}

func statusError(resp *http.Response, id string) error {
	message := readErrorMessage(resp)

	switch {
	case isTransientStatus(resp.StatusCode):
		return &transientError{err: fmt.Errorf("unexpected status code: %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNotFound:
		return humayat.NotFoundError{Resource: "image", ID: id}
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusUnsupportedMediaType,
		resp.StatusCode == http.StatusUnprocessableEntity:
		return &humayat.ValidationError{Field: "request", Reason: message}
	default:
		return &humayat.UpstreamServiceError{
			Service:    "humayat",
			StatusCode: resp.StatusCode,
			Message:    message,
		}
	}
}

func readErrorMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	var payload humayat.ErrorResponse
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}

func encodeUpload(data []byte, filename, contentType, title, attribution string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}

	if err := w.WriteField("title", title); err != nil {
		return nil, "", err
	}
	if attribution != "" {
		if err := w.WriteField("uploadedBy", attribution); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
