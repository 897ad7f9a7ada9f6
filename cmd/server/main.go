package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"prepdeck/internal/analysis"
	"prepdeck/internal/archive"
	"prepdeck/internal/config"
	apphttp "prepdeck/internal/http"
	"prepdeck/internal/repository/sqlite"
	"prepdeck/internal/service"
	"prepdeck/internal/session"
	"prepdeck/internal/storage"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	if strings.TrimSpace(cfg.Auth.SessionSecret) == "" {
		logger.Fatalf("auth session secret is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Fatalf("open database: %v", err)
	}
	defer db.Close()

	userRepo := sqlite.NewUserRepository(db)
	answerRepo := sqlite.NewAnswerRepository(db)

	if err := userRepo.Init(ctx); err != nil {
		logger.Fatalf("init user repository: %v", err)
	}
	if err := answerRepo.Init(ctx); err != nil {
		logger.Fatalf("init answer repository: %v", err)
	}

	userService := service.NewUserService(userRepo)
	answerService := service.NewAnswerService(answerRepo, cfg.Answers.MaxQuestion)

	binder := session.NewBinder(cfg.Auth.SessionSecret, time.Duration(cfg.Auth.SessionTTLMinutes)*time.Minute)

	answerArchive, err := archive.New(cfg.Media.AnswersDir)
	if err != nil {
		logger.Fatalf("setup answers archive: %v", err)
	}
	catalog := archive.NewCatalog(cfg.Media.CatalogDir)

	runner := analysis.NewRunner(analysis.Config{
		Python:        cfg.Analysis.Python,
		ScriptsDir:    cfg.Analysis.ScriptsDir,
		MaxConcurrent: cfg.Analysis.MaxConcurrent,
		Timeout:       time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
		Logger:        logger,
	})

	storageSvc, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("setup storage: %v", err)
	}
	var mirror *storage.Mirror
	if storageSvc != nil {
		mirror = storage.NewMirror(storageSvc, storage.UploadOptions{
			Bucket:    cfg.Storage.Bucket,
			KeyPrefix: cfg.Storage.KeyPrefix,
		}, logger)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handler := apphttp.NewHandler(apphttp.Options{
		Users:      userService,
		Answers:    answerService,
		Sessions:   binder,
		Archive:    answerArchive,
		Catalog:    catalog,
		Runner:     runner,
		Mirror:     mirror,
		Storage:    storageSvc,
		Bucket:     cfg.Storage.Bucket,
		CookieName: cfg.Auth.CookieName,
		CORSOrigin: cfg.CORS.Origin,
		CatalogDir: cfg.Media.CatalogDir,
		ModelsDir:  cfg.Media.ModelsDir,
		Logger:     logger,
	})
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		logger.Infof("listening on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	mirror.Shutdown()

	logger.Info("bye")
}

// buildStorage returns nil when no bucket is configured; the archive then
// stays local-only.
func buildStorage(ctx context.Context, cfg config.Config, logger *logrus.Logger) (storage.Service, error) {
	if cfg.Storage.Bucket == "" {
		logger.Info("storage mirror disabled")
		return nil, nil
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Storage.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("mirroring answers to s3 bucket %s (region %s)", cfg.Storage.Bucket, cfg.Storage.Region)
	return storage.NewS3Service(client), nil
}
