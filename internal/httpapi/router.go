package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"genproxy/internal/auth"
	"genproxy/internal/config"
	"genproxy/internal/coordinator"
	"genproxy/internal/failover"
	"genproxy/internal/health"
	"genproxy/internal/logging"
	"genproxy/internal/metrics"
	"genproxy/internal/middleware"
	"genproxy/internal/perf"
	"genproxy/internal/providers"
	"genproxy/internal/ratelimit"
	"genproxy/internal/registry"
	"genproxy/internal/routing"
	"genproxy/internal/spend"
	"genproxy/internal/storage"
	"genproxy/internal/utils"
)

// Dependencies aggregates all services the HTTP layer needs, plus the
// handles main uses for graceful shutdown.
type Dependencies struct {
	DB          *storage.DB
	Redis       *storage.RedisClient
	Cipher      *storage.CredentialCipher
	Registry    *registry.Registry
	Tracker     *perf.Tracker
	Monitor     *health.Monitor
	Failover    *failover.Manager
	Spend       *spend.Service
	Router      *routing.Router
	Coordinator *coordinator.Coordinator
	Metrics     metrics.Metrics
	AuditLogger *logging.AuditLogger
	Archive     *logging.ArchivingSink
}

// NewRouter creates an HTTP router with all dependencies wired up.
// Background workers (registry reload, health probes, failover recovery,
// spend sync) are started here; main stops them through Dependencies.
func NewRouter(ctx context.Context, cfg *config.Config) (*http.ServeMux, *Dependencies, error) {
	db, err := storage.NewDB(storage.DBConfig{
		DSN:              cfg.Database.URL,
		MaxOpenConns:     cfg.Database.MaxOpenConns,
		MaxIdleConns:     cfg.Database.MaxIdleConns,
		ConnMaxLifetime:  cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:  cfg.Database.ConnMaxIdleTime,
		BindingCacheSize: cfg.Database.BindingCacheSize,
		BindingCacheTTL:  cfg.Database.BindingCacheTTL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	redisClient, err := storage.NewRedisClient(storage.RedisConfig{
		Address:      cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}

	cipher, err := storage.NewCredentialCipherFromBase64(cfg.CredentialKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize credential cipher: %w", err)
	}

	factory := providers.NewFactory(cipher)
	upstreamClient := &http.Client{Timeout: cfg.Executor.RequestTimeout}
	factory.Register(providers.NewOpenAIFamily(upstreamClient))
	factory.Register(providers.NewAnthropicFamily(upstreamClient))

	reg, err := registry.New(ctx, registry.Config{
		DB:             db,
		ReloadInterval: cfg.Registry.ReloadInterval,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize account registry: %w", err)
	}

	tracker := perf.NewTracker(perf.Config{
		WindowSize: cfg.Perf.WindowSize,
		EWMAAlpha:  cfg.Perf.EWMAAlpha,
	})

	spendService := spend.NewService(
		redisClient.Client(),
		storage.NewSpendRepository(db),
		cfg.Spend.Currency,
		cfg.Spend.SyncInterval,
	)

	router := routing.NewRouter(reg, tracker, spendService)

	monitor := health.NewMonitor(reg, factory, tracker, cfg.Health)

	failoverManager, err := failover.NewManager(ctx, reg, storage.NewEventRepository(db), monitor, cfg.Failover)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize failover manager: %w", err)
	}
	monitor.SetNotifier(failoverManager)

	limiter := ratelimit.NewAccountLimiter(redisClient.Client())

	auditLogger, err := logging.NewAuditLogger(
		cfg.Audit.FilePathTemplate,
		cfg.Audit.MaxSize,
		cfg.Audit.MaxFiles,
		cfg.Audit.BufferSize,
		cfg.Audit.FlushInterval,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	var auditSink logging.Sink = auditLogger
	var archive *logging.ArchivingSink
	if cfg.Audit.S3Enabled {
		archiver, err := logging.NewS3Archiver(ctx, cfg.Audit.S3Bucket, cfg.Audit.S3Region, cfg.Audit.S3Prefix, cfg.Audit.NodeName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize S3 audit archiver: %w", err)
		}
		archive = logging.NewArchivingSink(auditLogger, archiver, cfg.Audit.FlushInterval)
		auditSink = archive
	}

	coord := coordinator.New(router, factory, reg, tracker, failoverManager, spendService, limiter, auditSink, cfg.Executor)

	// Background workers
	reg.Start()
	monitor.Start()
	failoverManager.Start()
	spendService.Start()

	deps := &Dependencies{
		DB:          db,
		Redis:       redisClient,
		Cipher:      cipher,
		Registry:    reg,
		Tracker:     tracker,
		Monitor:     monitor,
		Failover:    failoverManager,
		Spend:       spendService,
		Router:      router,
		Coordinator: coord,
		Metrics:     metrics.NewNoopMetrics(),
		AuditLogger: auditLogger,
		Archive:     archive,
	}

	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)

	return mux, deps, nil
}

// Shutdown stops the background workers and flushes buffered audit
// records. Safe to call once after the HTTP server has drained.
func (d *Dependencies) Shutdown() {
	d.Monitor.Stop()
	d.Failover.Stop()
	d.Spend.Stop()
	d.Registry.Stop()

	if d.Archive != nil {
		d.Archive.Shutdown()
	}
	d.AuditLogger.Shutdown()

	d.Redis.Close()
	d.DB.Close()
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config) {
	healthHandler := NewHealthHandler(deps.Monitor)
	failoverHandler := NewFailoverHandler(deps.Failover)
	perfHandler := NewPerfHandler(deps.Tracker, deps.Registry)
	generateHandler := NewGenerateHandler(deps.Coordinator, deps.Router)

	accountsHandler := NewAdminAccountsHandler(deps.DB, deps.Cipher, deps.Registry)
	bindingsHandler := NewAdminBindingsHandler(deps.DB, deps.Registry)
	rulesHandler := NewAdminRulesHandler(deps.DB, deps.Registry)
	thresholdsHandler := NewAdminThresholdsHandler(deps.DB, deps.Registry)

	viewerJWT := middleware.OperatorJWTMiddleware(cfg.JWTSecret, string(auth.RoleViewer))
	adminJWT := middleware.OperatorJWTMiddleware(cfg.JWTSecret, string(auth.RoleAdmin))

	// Liveness and metrics endpoints are public.
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", deps.Metrics.HTTPHandler())

	// Task API
	mux.HandleFunc("/v1/generate", generateHandler.Generate)
	mux.HandleFunc("/v1/route", generateHandler.Route)

	// Monitoring endpoints
	mux.Handle("/v1/proxies/health", viewerJWT(http.HandlerFunc(healthHandler.List)))
	mux.Handle("/v1/proxies/health/check", adminJWT(http.HandlerFunc(healthHandler.TriggerCheck)))
	mux.Handle("/v1/proxies/performance", viewerJWT(http.HandlerFunc(perfHandler.List)))
	mux.Handle("/v1/failover/stats", viewerJWT(http.HandlerFunc(failoverHandler.Stats)))

	// Per-account routes share the /v1/proxies/ subtree.
	mux.Handle("/v1/proxies/", proxyItemHandler(healthHandler, failoverHandler, viewerJWT, adminJWT))

	// Admin CRUD
	mux.Handle("/admin/accounts", adminJWT(http.HandlerFunc(accountsHandler.Collection)))
	mux.Handle("/admin/accounts/", adminJWT(http.HandlerFunc(accountsHandler.Item)))
	mux.Handle("/admin/bindings", adminJWT(http.HandlerFunc(bindingsHandler.Collection)))
	mux.Handle("/admin/bindings/", adminJWT(http.HandlerFunc(bindingsHandler.Item)))
	mux.Handle("/admin/rules", adminJWT(http.HandlerFunc(rulesHandler.Collection)))
	mux.Handle("/admin/rules/", adminJWT(http.HandlerFunc(rulesHandler.Item)))
	mux.Handle("/admin/thresholds", adminJWT(http.HandlerFunc(thresholdsHandler.Collection)))
	mux.Handle("/admin/thresholds/", adminJWT(http.HandlerFunc(thresholdsHandler.Item)))
}

// proxyItemHandler dispatches /v1/proxies/{id}/... paths. History reads
// need the viewer role, failover control needs admin.
func proxyItemHandler(healthHandler *HealthHandler, failoverHandler *FailoverHandler, viewerJWT, adminJWT func(http.Handler) http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case len(pathParts) == 5 && pathParts[3] == "health" && pathParts[4] == "history":
			viewerJWT(http.HandlerFunc(healthHandler.History)).ServeHTTP(w, r)
		case len(pathParts) == 5 && pathParts[3] == "failover" && pathParts[4] == "history":
			viewerJWT(http.HandlerFunc(failoverHandler.History)).ServeHTTP(w, r)
		case len(pathParts) == 4 && pathParts[3] == "failover":
			adminJWT(http.HandlerFunc(failoverHandler.Trigger)).ServeHTTP(w, r)
		case len(pathParts) == 4 && pathParts[3] == "recover":
			adminJWT(http.HandlerFunc(failoverHandler.Recover)).ServeHTTP(w, r)
		default:
			utils.RespondWithError(w, http.StatusNotFound, "Not found")
		}
	})
}
