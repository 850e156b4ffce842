package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"studyhelper/internal/bootstrap"
	"studyhelper/internal/util"
	"studyhelper/pkg/ai"
	"studyhelper/pkg/queue"
	"studyhelper/services/worker/internal/app"
	"studyhelper/services/worker/internal/config"
)

func main() {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded environment from .env")
	}
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := bootstrap.OpenStore(cfg.StoreConfig)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	objects, err := bootstrap.OpenStorage(ctx, cfg.StorageConfig)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	var ocr ai.PDFPageOCR
	if cfg.OCREnabled {
		pageOCR, closeOCR, err := bootstrap.NewPageOCR(ctx, cfg.AIConfig)
		if err != nil {
			log.Fatalf("failed to init ocr: %v", err)
		}
		defer closeOCR()
		ocr = pageOCR
	}
	retryDelay, _ := config.ParseDuration("queueRetryDelay", cfg.QueueRetryDelay)
	claimIdle, _ := config.ParseDuration("queueClaimIdle", cfg.QueueClaimIdle)
	ocrTimeout, _ := config.ParseDuration("ocrTimeout", cfg.OCRTimeout)

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueStream,
		Group:      cfg.QueueGroup,
		Consumer:   cfg.QueueConsumer,
		MaxRetries: cfg.QueueMaxRetries,
		RetryDelay: retryDelay,
		ClaimIdle:  claimIdle,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}
	defer jobs.Close()

	worker, err := app.New(app.Config{
		Store:        st,
		Objects:      objects,
		OCR:          ocr,
		MaxFileBytes: cfg.MaxFileBytes,
		OCRMaxPages:  cfg.OCRMaxPages,
		OCRTimeout:   ocrTimeout,
	})
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}

	concurrency := cfg.QueueConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker consuming", "concurrency", concurrency, "max_retries", jobs.MaxRetries(), "ocr", ocr != nil)
		return jobs.Run(gctx, concurrency, worker.Process)
	})
	if cfg.HealthPort != "" {
		srv := &http.Server{
			Addr:         ":" + cfg.HealthPort,
			Handler:      util.WithRequestID(util.WithRequestLog("worker", healthHandler())),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker error", "err", err)
	}
	slog.Info("worker stopped")
}

func healthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	return mux
}
