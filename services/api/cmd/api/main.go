package main

import (
	"context"
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
	"studyhelper/internal/filetoken"
	"studyhelper/internal/ratelimit"
	"studyhelper/internal/security"
	"studyhelper/internal/usertoken"
	"studyhelper/internal/util"
	"studyhelper/pkg/queue"
	"studyhelper/services/api/internal/app"
	"studyhelper/services/api/internal/config"
	"studyhelper/services/api/internal/server"
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

	jwtLeeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("failed to parse jwt leeway: %v", err)
	}
	fileTokenTTL, _ := config.ParseDuration("fileTokenTTL", cfg.FileTokenTTL)
	urlExpiry, _ := config.ParseDuration("storageURLExpiry", cfg.StorageURLExpiry)

	st, err := bootstrap.OpenStore(cfg.StoreConfig)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	objects, err := bootstrap.OpenStorage(ctx, cfg.StorageConfig)
	if err != nil {
		log.Fatalf("failed to init object storage: %v", err)
	}

	jobs, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{
		Addr:       cfg.RedisAddr,
		Password:   cfg.RedisPassword,
		Stream:     cfg.QueueStream,
		MaxRetries: cfg.QueueMaxRetries,
	})
	if err != nil {
		log.Fatalf("failed to init job queue: %v", err)
	}
	defer jobs.Close()

	generator, err := bootstrap.NewGenerator(cfg.AIConfig)
	if err != nil {
		log.Fatalf("failed to init ai generator: %v", err)
	}
	extractor, closeExtractor, err := bootstrap.NewExtractor(ctx, cfg.AIConfig)
	if err != nil {
		log.Fatalf("failed to init text extractor: %v", err)
	}
	defer closeExtractor()

	fileTokenSecret := cfg.FileTokenSecret
	if fileTokenSecret == "" {
		fileTokenSecret = cfg.AuthSecret
	}
	fileTokens, err := filetoken.NewSigner(fileTokenSecret, fileTokenTTL)
	if err != nil {
		log.Fatalf("failed to init file token signer: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:          st,
		Objects:        objects,
		Queue:          jobs,
		Generator:      generator,
		Extractor:      extractor,
		FileTokens:     fileTokens,
		MaxUploadBytes: cfg.MaxUploadBytes,
		ContextWindow:  cfg.ContextWindowChars,
		HistoryLimit:   cfg.QuestionHistoryLimit,
		URLExpiry:      urlExpiry,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		Secret:   cfg.AuthSecret,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   jwtLeeway,
	})
	if err != nil {
		log.Fatalf("failed to init token verifier: %v", err)
	}
	aiLimit := cfg.AIRateLimitPerMinute
	if aiLimit <= 0 {
		aiLimit = 20
	}
	aiLimiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "studyhelper:api:ratelimit:ai", aiLimit, time.Minute)
	if err != nil {
		log.Fatalf("failed to init ai rate limiter: %v", err)
	}
	alerter := security.NewAuditAlerter(cfg.RedisAddr, cfg.RedisPassword, "studyhelper:api:alerts")
	defer alerter.Close()
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                appCore,
		TokenVerifier:      tokenVerifier,
		AILimiter:          aiLimiter,
		Alerter:            alerter,
		TrustedProxies:     trusted,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("api server listening", "addr", addr, "storage", appCore.Providers())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down api server")
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
}
