package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/totegamma/humayat/internal/config"
	"github.com/totegamma/humayat/internal/domain"
	"github.com/totegamma/humayat/internal/infra/database"
	"github.com/totegamma/humayat/internal/infra/gateway"
	"github.com/totegamma/humayat/internal/infra/metrics"
	"github.com/totegamma/humayat/internal/infra/repository"
	"github.com/totegamma/humayat/internal/present/rest"
	"github.com/totegamma/humayat/internal/service"
	"github.com/totegamma/humayat/internal/usecase"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	configPath := os.Getenv("HUMAYAT_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	conf, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if conf.Server.EnableTrace {
		shutdown, err := setupTraceProvider(ctx, conf.Server.TraceEndpoint, "humayat")
		if err != nil {
			panic(err)
		}
		defer func() {
			_ = shutdown(context.Background())
		}()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		panic("failed to connect database")
	}

	err = database.MigratePostgres(db)
	if err != nil {
		panic("failed to migrate database")
	}

	var imageRepo usecase.ImageRepository = repository.NewImageRepository(db)
	if conf.Server.MemcachedAddr != "" {
		imageRepo = repository.NewCachedImageRepository(imageRepo, database.NewMemcached(conf.Server.MemcachedAddr))
	}

	media, err := newMediaGateway(ctx, conf.Media)
	if err != nil {
		panic(err)
	}
	if closer, ok := media.(io.Closer); ok {
		defer closer.Close()
	}

	var realtime rest.RealtimeSource
	var events usecase.EventPublisher
	if conf.Server.RedisAddr != "" {
		rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
		defer rdb.Close()
		signalService := service.NewSignalService(rdb)
		realtime = signalService
		events = signalService
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	imageUsecase := usecase.NewImageUsecase(imageRepo, media, usecase.ImageOptions{
		Events:   events,
		Observer: metrics.New(registry),
		Folder:   conf.Media.Folder,
		MaxBytes: conf.Upload.MaxBytes,
	})

	handler := rest.NewHandler(conf.Upload, imageUsecase, realtime)

	e := rest.NewServer(rest.ServerOptions{
		EnableTrace:  conf.Server.EnableTrace,
		AllowOrigins: conf.Server.AllowOrigins,
		MaxBytes:     conf.Upload.MaxBytes,
	})
	handler.RegisterRoutes(e)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	go func() {
		addr := fmt.Sprintf(":%d", conf.Server.Port)
		slog.Info("server starting", slog.String("addr", addr), slog.String("media", conf.Media.Provider))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server stopped", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown failed", slog.String("error", err.Error()))
	}
}

func newMediaGateway(ctx context.Context, conf config.Media) (usecase.MediaGateway, error) {
	switch conf.Provider {
	case domain.MediaProviderCloudinary:
		if conf.Cloudinary.CloudName == "" || conf.Cloudinary.APIKey == "" || conf.Cloudinary.APISecret == "" {
			return nil, errors.New("cloudinary credentials are missing")
		}
		return gateway.NewCloudinaryGateway(gateway.CloudinaryConfig{
			CloudName: conf.Cloudinary.CloudName,
			APIKey:    conf.Cloudinary.APIKey,
			APISecret: conf.Cloudinary.APISecret,
		})
	case domain.MediaProviderGCS:
		return gateway.NewGCSGateway(ctx, gateway.GCSConfig{
			Bucket:          conf.GCS.Bucket,
			CredentialsFile: conf.GCS.CredentialsFile,
			PublicBaseURL:   conf.GCS.PublicBaseURL,
			Endpoint:        conf.GCS.Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown media provider %q", conf.Provider)
	}
}

func setupTraceProvider(ctx context.Context, endpoint string, serviceName string) (func(context.Context) error, error) {

	exporter, err := otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	otel.SetTracerProvider(provider)

	return provider.Shutdown, nil
}
