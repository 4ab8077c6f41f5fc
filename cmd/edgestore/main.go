package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/ngonendi/edgestore/client"
	"github.com/ngonendi/edgestore/internal/cache"
	"github.com/ngonendi/edgestore/internal/config"
	"github.com/ngonendi/edgestore/internal/infra/database"
	"github.com/ngonendi/edgestore/internal/infra/repository"
	"github.com/ngonendi/edgestore/internal/present/rest"
	"github.com/ngonendi/edgestore/internal/present/rest/middleware"
	"github.com/ngonendi/edgestore/internal/service"
	"github.com/ngonendi/edgestore/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	ctx := context.Background()

	if conf.Server.EnableTrace {
		shutdown, err := setupTrace(ctx, conf.Server.TraceEndpoint)
		if err != nil {
			panic("failed to set up tracing: " + err.Error())
		}
		defer func() {
			if err := shutdown(ctx); err != nil {
				slog.Error("trace shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		panic("failed to connect database")
	}
	if err := database.MigratePostgres(db); err != nil {
		panic("failed to migrate database")
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)

	var backend cache.Backend
	switch conf.Cache.Backend {
	case "redis":
		backend = cache.NewRedisBackend(rdb)
	case "memcached":
		backend = cache.NewMemcachedBackend(database.NewMemcached(conf.Server.MemcachedAddr))
	case "none":
		backend = nil
	default:
		panic("unknown cache backend: " + conf.Cache.Backend)
	}
	tt := cache.New(backend, time.Duration(conf.Cache.TTLSeconds)*time.Second)

	cl := client.New(
		conf.Remote.Endpoint,
		conf.Remote.Organization,
		conf.Remote.Username,
		conf.Remote.Password,
	)

	devStorage := repository.NewDeveloperStorage(cl, tt)
	userRepo := repository.NewUserRepository(db)

	signal := service.NewInvalidationService(rdb)
	go signal.Mirror(ctx, tt)

	devUsecase := usecase.NewDeveloperUsecase(devStorage, signal)
	userUsecase := usecase.NewUserUsecase(userRepo, tt, signal)

	handler := rest.NewHandler(devUsecase, userUsecase, signal)
	auth := middleware.NewAuthMiddleware(conf.Server.AdminToken)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("edgestore"))
	}

	handler.RegisterRoutes(e, auth)

	e.Logger.Fatal(e.Start(conf.Server.Listen))
}

func setupTrace(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "edgestore"),
		)),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
