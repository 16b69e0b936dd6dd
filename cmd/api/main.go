package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealerdesk_backend/internal/adapters/storage"
	"dealerdesk_backend/internal/events"
	apphttp "dealerdesk_backend/internal/http"
	"dealerdesk_backend/internal/http/router"
	"dealerdesk_backend/internal/identity"
	"dealerdesk_backend/internal/inbound"
	"dealerdesk_backend/internal/leadads"
	"dealerdesk_backend/internal/leads"
	"dealerdesk_backend/internal/scheduler"
	"dealerdesk_backend/migrations"
	"dealerdesk_backend/platform/config"
	"dealerdesk_backend/platform/db"
	"dealerdesk_backend/platform/httpkit"
	"dealerdesk_backend/platform/logger"
	"dealerdesk_backend/platform/rediskit"
	"dealerdesk_backend/platform/validator"
	"dealerdesk_backend/platform/webhooksig"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize structured logger
	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, migrations.FS, migrations.Dir)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	redisClient := initRedis(cfg, log)
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	// Event bus for decoupled communication between modules
	eventBus := events.NewInMemoryBus(log)

	queue, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize task queue client", "error", err)
		panic("failed to initialize task queue client: " + err.Error())
	}
	defer func() { _ = queue.Close() }()
	scheduler.NewBridge(queue, log).Subscribe(eventBus)

	val := validator.New()

	store := initStorage(ctx, cfg, log)

	verifier, err := webhooksig.NewSvixVerifier(cfg.GetClerkWebhookSecret())
	if err != nil {
		log.Error("invalid identity webhook secret", "error", err)
		panic("invalid identity webhook secret: " + err.Error())
	}

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	identityModule := identity.NewModule(pool, verifier, log)
	leadsModule, err := leads.NewModule(pool, redisClient, eventBus, val, cfg, log)
	if err != nil {
		log.Error("failed to initialize leads module", "error", err)
		panic("failed to initialize leads module: " + err.Error())
	}
	inboundModule := inbound.NewModule(pool, store, cfg.GetMinioBucketInboundAttachments(), eventBus, log)
	leadAdsModule := leadads.NewModule(eventBus, cfg, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config:   cfg,
		Logger:   log,
		Health:   db.NewPoolAdapter(pool),
		EventBus: eventBus,
		Auth:     authChain(cfg, identityModule.Service(), log),
		Modules: []apphttp.Module{
			identityModule,
			leadsModule,
			inboundModule,
			leadAdsModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
		eventBus.Wait()
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func initRedis(cfg *config.Config, log *logger.Logger) *redis.Client {
	client, err := rediskit.NewClient(cfg)
	if errors.Is(err, rediskit.ErrNotConfigured) {
		log.Warn("REDIS_URL not configured; form dedup lock disabled")
		return nil
	}
	if err != nil {
		log.Error("failed to initialize redis client", "error", err)
		panic("failed to initialize redis client: " + err.Error())
	}
	return client
}

// initStorage returns nil when object storage is not configured; relay
// attachments are then recorded without an object key.
func initStorage(ctx context.Context, cfg *config.Config, log *logger.Logger) storage.ObjectStore {
	svc, err := storage.NewMinIOService(cfg)
	if errors.Is(err, storage.ErrNotConfigured) {
		log.Warn("MINIO_ENDPOINT not configured; inbound attachments will not be archived")
		return nil
	}
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		panic("failed to initialize storage service: " + err.Error())
	}

	bucket := cfg.GetMinioBucketInboundAttachments()
	if err := withRetry(ctx, log, "ensure inbound attachments bucket", 5, 2*time.Second, func() error {
		return svc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		panic("failed to ensure storage bucket exists: " + err.Error())
	}
	log.Info("storage service initialized", "inboundAttachmentsBucket", bucket)
	return svc
}

// authChain is nil when no JWKS URL is configured, which closes the
// protected routes.
func authChain(cfg *config.Config, resolver httpkit.PrincipalResolver, log *logger.Logger) []gin.HandlerFunc {
	if cfg.GetJWKSURL() == "" {
		log.Warn("CLERK_JWKS_URL not configured; protected routes are disabled")
		return nil
	}
	jwks, err := httpkit.NewJWKS(cfg)
	if err != nil {
		log.Error("failed to load JWKS", "error", err)
		panic("failed to load JWKS: " + err.Error())
	}
	return []gin.HandlerFunc{
		httpkit.AuthRequired(jwks.Keyfunc, cfg.GetJWTIssuer(), log),
		httpkit.RequirePrincipal(resolver),
	}
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
