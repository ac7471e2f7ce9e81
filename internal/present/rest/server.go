package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/totegamma/humayat"
	restmiddleware "github.com/totegamma/humayat/internal/present/rest/middleware"
	"github.com/totegamma/humayat/internal/present/rest/presenter"
)

type ServerOptions struct {
	EnableTrace  bool
	AllowOrigins []string
	// MaxBytes is the upload limit; request bodies may exceed it by the
	// multipart overhead.
	MaxBytes int64
}

// NewServer returns an echo instance carrying the middleware stack every
// route is served through.
func NewServer(opts ServerOptions) *echo.Echo {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = humayat.MaxUploadSize
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler(maxBytes)

	if opts.EnableTrace {
		e.Use(otelecho.Middleware("humayat", otelecho.WithSkipper(func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/realtime"
		})))
	}
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(opts.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{AllowOrigins: opts.AllowOrigins}))
	} else {
		e.Use(middleware.CORS())
	}
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dK", maxBytes/1024+64)))
	e.Use(restmiddleware.RequestContext)

	return e
}

// errorHandler renders errors that escape the handlers as {"error": ...}.
// An oversized body is an invalid upload and answers 400.
func errorHandler(maxBytes int64) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(err, &he) {
			_ = presenter.InternalError(c, err)
			return
		}

		if he.Code == http.StatusRequestEntityTooLarge {
			_ = presenter.BadRequest(c, &humayat.ValidationError{
				Field:  "image",
				Reason: fmt.Sprintf("request body exceeds the %d byte upload limit", maxBytes),
			})
			return
		}

		message := http.StatusText(he.Code)
		if m, ok := he.Message.(string); ok && m != "" {
			message = m
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(he.Code)
			return
		}
		_ = c.JSON(he.Code, humayat.ErrorResponse{Error: message})
	}
}
