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

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/oryonaisystem-create/smartbar-system-sub000/handlers"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/config"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/database"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/identity"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/notify"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/oidc"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/profiles"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/sessions"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/shifts"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/storage"
	"github.com/oryonaisystem-create/smartbar-system-sub000/internal/telemetry"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/logger"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/metrics"
	"github.com/oryonaisystem-create/smartbar-system-sub000/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: postgres=%v keycloak=%v mongo=%v redis=%v minio=%v",
		cfg.Postgres.URL != "", cfg.Keycloak.URL != "", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Lightweight CORS for the dashboard UI served from another origin.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	// Redis: sessions, token blacklist and the shared rate limiter.
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			_ = client.Close()
		} else {
			redisClient = client
			defer func() { _ = redisClient.Close() }()
			logger.Infof("connected to Redis %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// Relational store. Profiles, shifts and telemetry prefer PostgreSQL.
	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		p, err := database.ConnectPostgres(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns, cfg.Postgres.Timeout)
		if err != nil {
			logger.Warnf("could not connect to PostgreSQL: %v", err)
		} else if err := database.Migrate(ctx, p); err != nil {
			logger.Errorf("schema migration failed: %v", err)
			p.Close()
		} else {
			pool = p
			defer pool.Close()
			logger.Infof("connected to PostgreSQL")
		}
	}

	var mongoDB *mongo.Database
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 5)
		if err != nil {
			logger.Warnf("could not connect to MongoDB: %v", err)
		} else {
			defer func() { _ = client.Disconnect(context.Background()) }()
			mongoDB = client.Database(cfg.MongoDB.Database)
		}
	}

	var profileRepo profiles.Repository
	var shiftStore shifts.Store
	var sink telemetry.Sink
	switch {
	case pool != nil:
		profileRepo = profiles.NewPostgresRepository(pool)
		shiftStore = shifts.NewPostgresStore(pool)
		sink = telemetry.NewPostgresSink(pool)
	case mongoDB != nil:
		profileRepo = profiles.NewMongoRepository(mongoDB.Collection("profiles"))
		sink = telemetry.NewMongoSink(mongoDB.Collection("telemetry_events"))
		if err := shifts.EnsureMongoIndexes(ctx, mongoDB); err != nil {
			logger.Warnf("shift indexes: %v", err)
		}
		shiftStore = shifts.NewMongoStore(mongoDB)
	}
	if profileRepo == nil {
		logger.Warn("profiles kept in memory")
		profileRepo = profiles.NewMemoryRepository()
	}
	if shiftStore == nil {
		logger.Warn("shift ledger kept in memory; open shifts do not survive a restart")
		shiftStore = shifts.NewMemoryStore()
	}
	if sink == nil {
		sink = telemetry.NewMemorySink()
	}

	// Telemetry queue
	queue := telemetry.NewQueue(sink, telemetry.Options{
		FlushInterval: cfg.Telemetry.FlushInterval,
		MaxQueue:      cfg.Telemetry.MaxQueue,
	})
	queue.Start()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := queue.Stop(sctx); err != nil {
			logger.Warnf("telemetry: final flush failed: %v", err)
		}
	}()

	// Sessions: Redis first, then Mongo, then memory.
	var sessionRepo sessions.Repository
	switch {
	case redisClient != nil:
		sessionRepo = sessions.NewRedisRepository(redisClient, "session:")
		logger.Infof("using Redis for session storage")
	case mongoDB != nil:
		mrepo := sessions.NewMongoRepository(mongoDB.Collection("sessions"))
		if err := mrepo.EnsureTTLIndex(ctx); err != nil {
			logger.Warnf("sessions: %v", err)
		}
		sessionRepo = mrepo
		logger.Infof("using MongoDB for session storage")
	default:
		sessionRepo = sessions.NewMemoryRepository()
	}
	sessionsSvc := sessions.NewService(sessionRepo)
	blacklist := sessions.NewBlacklist(redisClient)

	// Keycloak OIDC verifier for id tokens
	var verifier oidc.TokenVerifier
	if cfg.Keycloak.URL != "" && cfg.Keycloak.ClientID != "" && cfg.Keycloak.Realm != "" {
		ver, err := oidc.NewVerifier(ctx, oidc.Issuer(cfg.Keycloak.URL, cfg.Keycloak.Realm), cfg.Keycloak.ClientID)
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
		} else {
			verifier = ver
		}
	}
	if verifier == nil && cfg.Keycloak.AllowInsecureToken {
		logger.Warn("enabling insecure OIDC verifier (integration mode)")
		verifier = oidc.NewInsecureVerifier()
	}

	provider := identity.NewKeycloakProvider(identity.KeycloakConfig{
		BaseURL:      cfg.Keycloak.URL,
		Realm:        cfg.Keycloak.Realm,
		ClientID:     cfg.Keycloak.ClientID,
		ClientSecret: cfg.Keycloak.ClientSecret,
		TerminalKey:  cfg.Identity.TerminalKey,
		SessionTTL:   cfg.Identity.SessionTTL,
	}, verifier, sessionsSvc, blacklist, identity.NewBroker(16))

	resolver := identity.NewResolver(provider, profiles.NewService(profileRepo), identity.Options{
		AdminEmails:      cfg.Identity.AdminEmails,
		EnforceAllowList: cfg.Identity.EnforceAdminAllowList,
		Recorder:         queue,
	})
	resolverDone := make(chan struct{})
	go func() {
		defer close(resolverDone)
		resolver.Run(ctx)
	}()
	if err := resolver.Boot(ctx); err != nil {
		logger.Errorf("identity boot failed: %v", err)
	}

	// Shift ledger and its follow-ups
	var notifier shifts.Notifier
	if w := notify.NewWebhook(cfg.Shifts.WebhookURL, cfg.Shifts.WebhookSecret, cfg.Shifts.WebhookTimeout); w != nil {
		notifier = w
	}
	var archive *storage.ReportArchive
	if mcfg := storage.FromConfig(cfg.MinIO); mcfg != nil {
		objects, err := storage.NewMinIOStorage(ctx, mcfg)
		if err != nil {
			logger.Warnf("closing report archive disabled: %v", err)
		} else {
			archive = storage.NewReportArchive(objects)
		}
	}
	ledgerOpts := shifts.Options{
		WarningThreshold: shifts.Money(cfg.Shifts.WarningThresholdCents),
		AdminEmail:       cfg.Shifts.AdminEmail,
		Notifier:         notifier,
		Recorder:         queue,
	}
	var reports handlers.ReportLinker
	if archive != nil {
		ledgerOpts.Archiver = archive
		reports = archive
	}
	ledger := shifts.NewLedger(shiftStore, ledgerOpts)
	if err := ledger.Restore(ctx); err != nil {
		logger.Errorf("could not restore open shift: %v", err)
	}

	handlers.RegisterHealth(r, startTime, map[string]handlers.ReadinessCheck{
		"postgres": func(ctx context.Context) bool {
			if cfg.Postgres.URL == "" {
				return true
			}
			return pool != nil && pool.Ping(ctx) == nil
		},
		"redis": func(ctx context.Context) bool {
			if cfg.Redis.Host == "" {
				return true
			}
			return redisClient != nil && redisClient.Ping(ctx).Err() == nil
		},
		"oidc": func(ctx context.Context) bool {
			return cfg.Keycloak.URL == "" || verifier != nil
		},
		"identity": func(ctx context.Context) bool {
			return resolver.Snapshot().State != identity.StateBooting
		},
	})

	auth := handlers.NewAuthHandler(provider, resolver)
	auth.Register(r.Group("/"))
	handlers.RegisterSwagger(r)

	api := r.Group("/api/v1")
	auth.RegisterSession(api)
	handlers.NewTelemetryHandler(queue, resolver).Register(api)
	protected := api.Group("", middleware.AuthMiddleware(resolver, provider))
	handlers.NewShiftsHandler(ledger, reports).Register(protected)
	protected.GET("/me", func(c *gin.Context) {
		claims, _ := c.Get("claims")
		c.JSON(http.StatusOK, gin.H{"claims": claims})
	})

	// Expose Prometheus metrics
	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting terminal service on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("http shutdown: %v", err)
	}
	<-resolverDone
	resolver.Wait()
	ledger.Wait()
}
