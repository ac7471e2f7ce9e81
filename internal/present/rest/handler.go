package rest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/totegamma/humayat"
	"github.com/totegamma/humayat/internal/config"
	"github.com/totegamma/humayat/internal/domain"
	"github.com/totegamma/humayat/internal/present/rest/presenter"
	"github.com/totegamma/humayat/internal/usecase"
)

// RealtimeSource forwards image events to output until ctx is done.
type RealtimeSource interface {
	Realtime(ctx context.Context, output chan<- humayat.ImageEvent)
}

type Handler struct {
	limits   config.Upload
	image    *usecase.ImageUsecase
	signal   RealtimeSource
	validate *validator.Validate
}

// NewHandler wires the routes. A nil signal disables /realtime.
func NewHandler(
	limits config.Upload,
	image *usecase.ImageUsecase,
	signal RealtimeSource,
) *Handler {
	if limits.MaxBytes <= 0 {
		limits.MaxBytes = humayat.MaxUploadSize
	}
	return &Handler{
		limits:   limits,
		image:    image,
		signal:   signal,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/", h.handleHealth)
	e.GET("/api/images", h.handleList)
	e.GET("/api/images/:id", h.handleGet)
	e.POST("/api/images/upload", h.handleUpload)
	e.DELETE("/api/images/:id", h.handleDelete)
	e.GET("/realtime", h.handleRealtime)
}

func status(up bool) string {
	if up {
		return "connected"
	}
	return "disconnected"
}

func (h *Handler) handleHealth(c echo.Context) error {
	health := h.image.Health(c.Request().Context())
	return presenter.OK(c, humayat.Health{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Uptime:    health.Uptime.Seconds(),
		Database:  status(health.Database),
		Media:     status(health.Media),
	})
}

func (h *Handler) handleList(c echo.Context) error {
	images, err := h.image.List(c.Request().Context())
	if err != nil {
		return presenter.InternalError(c, err)
	}

	result := make([]humayat.Image, 0, len(images))
	for _, image := range images {
		result = append(result, image.Wire())
	}
	return presenter.OK(c, result)
}

func (h *Handler) handleGet(c echo.Context) error {
	image, err := h.image.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return presenter.Error(c, err, "Photo not found")
	}
	return presenter.OK(c, image.Wire())
}

type uploadForm struct {
	Title      string `form:"title"`
	UploadedBy string `form:"uploadedBy"`
}

func (h *Handler) validateForm(form uploadForm) error {
	checks := []struct {
		field string
		value string
		max   int
	}{
		{"title", form.Title, h.limits.MaxTitleLength},
		{"uploadedBy", form.UploadedBy, h.limits.MaxUploaderLength},
	}
	for _, check := range checks {
		if check.max <= 0 {
			continue
		}
		if err := h.validate.Var(check.value, fmt.Sprintf("max=%d", check.max)); err != nil {
			return &humayat.ValidationError{
				Field:  check.field,
				Reason: fmt.Sprintf("must be at most %d characters", check.max),
			}
		}
	}
	return nil
}

func (h *Handler) handleUpload(c echo.Context) error {
	ctx := c.Request().Context()

	file, err := c.FormFile("image")
	if err != nil {
		return presenter.BadRequestMessage(c, "No image file provided")
	}
	if file.Size > h.limits.MaxBytes {
		return presenter.BadRequest(c, &humayat.ValidationError{
			Field:  "image",
			Reason: fmt.Sprintf("file is %d bytes, limit is %d", file.Size, h.limits.MaxBytes),
		})
	}

	form := uploadForm{
		Title:      c.FormValue("title"),
		UploadedBy: c.FormValue("uploadedBy"),
	}
	if err := h.validateForm(form); err != nil {
		return presenter.BadRequest(c, err)
	}

	src, err := file.Open()
	if err != nil {
		return presenter.BadRequest(c, err)
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.limits.MaxBytes+1))
	if err != nil {
		return presenter.BadRequest(c, err)
	}

	image, err := h.image.Upload(ctx, domain.NewImage{
		Title:       form.Title,
		UploadedBy:  form.UploadedBy,
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		return presenter.Error(c, err, "")
	}

	return presenter.Created(c, image.Wire())
}

func (h *Handler) handleDelete(c echo.Context) error {
	id := c.Param("id")

	image, err := h.image.Delete(c.Request().Context(), id)
	if err != nil {
		return presenter.Error(c, err, "Photo not found")
	}

	return presenter.OK(c, humayat.DeleteResult{
		Message:   "Photo deleted",
		ID:        image.ID,
		Timestamp: time.Now().UTC(),
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Request struct {
	Type string `json:"type"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	if h.signal == nil {
		return c.JSON(http.StatusServiceUnavailable, humayat.ErrorResponse{Error: "realtime is disabled"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}
	defer func() {
		ws.Close()
	}()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	output := make(chan humayat.ImageEvent)
	go h.signal.Realtime(ctx, output)

	quit := make(chan struct{})

	go func() {
		defer close(quit)
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {

				wsErr, ok := err.(*websocket.CloseError)
				if ok {
					if !(wsErr.Code == websocket.CloseNormalClosure || wsErr.Code == websocket.CloseGoingAway) {
						slog.DebugContext(
							ctx, "WebSocket closed",
							slog.String("error", wsErr.Error()),
							slog.String("module", "socket"),
						)
					}
				} else {
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
				return
			}

			switch req.Type {
			case "h": // heartbeat
			default:
				slog.InfoContext(
					ctx, "Unknown request type",
					slog.String("type", req.Type),
					slog.String("module", "socket"),
				)
			}
		}
	}()

	for {
		select {
		case <-quit:
			return nil
		case event := <-output:
			err := ws.WriteJSON(event)
			if err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				return nil
			}
		}
	}
}
