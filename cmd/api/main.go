package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bryanwahyu/imagesight/internal/application"
	appimages "github.com/bryanwahyu/imagesight/internal/application/images"
	"github.com/bryanwahyu/imagesight/internal/config"
	domain "github.com/bryanwahyu/imagesight/internal/domain/images"
	"github.com/bryanwahyu/imagesight/internal/infra/cache"
	mysqlp "github.com/bryanwahyu/imagesight/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/imagesight/internal/infra/db/postgres"
	"github.com/bryanwahyu/imagesight/internal/infra/httpserver"
	minioStore "github.com/bryanwahyu/imagesight/internal/infra/storage"
	openaiVision "github.com/bryanwahyu/imagesight/internal/infra/vision/openai"
	"github.com/bryanwahyu/imagesight/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx := context.Background()

	// connect record store (mysql default, postgres alternatif)
	var (
		db   *sql.DB
		repo domain.Repository
	)
	switch cfg.Database.Driver {
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			log.Fatalf("postgres connect error: %v", err)
		}
		repo = postgresp.NewRecordRepository(db)
	default:
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			log.Fatalf("mysql connect error: %v", err)
		}
		repo = mysqlp.NewRecordRepository(db)
	}
	defer db.Close()

	// init minio
	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
	)
	if err != nil {
		log.Fatalf("minio init error: %v", err)
	}

	// init vision detector
	detector := openaiVision.NewClient(cfg.Vision.APIKey, cfg.Vision.Model)

	// init history cache (optional)
	var histCache domain.HistoryCache
	checkers := map[string]middleware.HealthChecker{
		"database":     &middleware.DatabaseHealthChecker{DB: db},
		"object_store": middleware.CheckerFunc(store.Health),
	}
	if cfg.Redis.Addr != "" {
		rc := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.RedisTTL())
		defer rc.Close()
		histCache = rc
		checkers["redis"] = middleware.CheckerFunc(rc.Health)
	}

	// init service
	svc := &appimages.Service{
		Repo:     repo,
		Store:    store,
		Detector: detector,
		Cache:    histCache,
		Clock:    application.SystemClock{},
		Opts: appimages.Options{
			UploadExpiry:    cfg.UploadExpiry(),
			MinConfidence:   cfg.Vision.MinConfidence,
			MaxLabels:       cfg.Vision.MaxLabels,
			DetectText:      cfg.Vision.DetectText,
			DetectorTimeout: cfg.VisionTimeout(),
		},
	}

	// init router
	mux := chi.NewRouter()
	mux.Use(middleware.LoggingMiddleware)
	mux.Use(middleware.MetricsMiddleware)
	mux.Use(middleware.RateLimitMiddleware(20, 10))
	mux.Mount("/", httpserver.NewRouter(svc, middleware.HealthHandler(checkers)))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		log.Printf("server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
