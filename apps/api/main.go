package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	entitytypeshandler "github.com/zenGate-Global/palmyra-records/domains/entity-types/be/handler"
	entitytypesrepo "github.com/zenGate-Global/palmyra-records/domains/entity-types/be/repo"
	entitytypesservice "github.com/zenGate-Global/palmyra-records/domains/entity-types/be/service"
	indexjobshandler "github.com/zenGate-Global/palmyra-records/domains/index-jobs/be/handler"
	indexjobsrepo "github.com/zenGate-Global/palmyra-records/domains/index-jobs/be/repo"
	indexjobsservice "github.com/zenGate-Global/palmyra-records/domains/index-jobs/be/service"
	recordshandler "github.com/zenGate-Global/palmyra-records/domains/records/be/handler"
	recordsrepo "github.com/zenGate-Global/palmyra-records/domains/records/be/repo"
	recordsservice "github.com/zenGate-Global/palmyra-records/domains/records/be/service"
	relationshandler "github.com/zenGate-Global/palmyra-records/domains/relations/be/handler"
	relationsrepo "github.com/zenGate-Global/palmyra-records/domains/relations/be/repo"
	relationsservice "github.com/zenGate-Global/palmyra-records/domains/relations/be/service"
	tenantshandler "github.com/zenGate-Global/palmyra-records/domains/tenants/be/handler"
	tenantsrepo "github.com/zenGate-Global/palmyra-records/domains/tenants/be/repo"
	tenantsservice "github.com/zenGate-Global/palmyra-records/domains/tenants/be/service"
	platformauth "github.com/zenGate-Global/palmyra-records/platform/go/auth"
	"github.com/zenGate-Global/palmyra-records/platform/go/events"
	"github.com/zenGate-Global/palmyra-records/platform/go/indexer"
	platformlogging "github.com/zenGate-Global/palmyra-records/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-records/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-records/platform/go/persistence"
	tenantmiddleware "github.com/zenGate-Global/palmyra-records/platform/go/tenant/middleware"
	"github.com/zenGate-Global/palmyra-records/platform/go/validation"
)

type config struct {
	Port               string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL        string        `env:"DATABASE_URL,required"`
	DBMaxConns         int32         `env:"DB_MAX_CONNS" envDefault:"0"`
	DBConnectTimeout   time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
	CORSAllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	AuthProvider       string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	FirebaseConfig     string        `env:"FIREBASE_CONFIG"`                     // service account json; empty uses ADC
	BootstrapSchema    bool          `env:"BOOTSTRAP_SCHEMA" envDefault:"false"`
	RowLevelSecurity   bool          `env:"ROW_LEVEL_SECURITY" envDefault:"true"`
	ValidatorCacheSize int           `env:"VALIDATOR_CACHE_SIZE" envDefault:"512"`
	EventsBackend      string        `env:"EVENTS_BACKEND" envDefault:"log"` // log | notify
	IndexTickInterval  time.Duration `env:"INDEX_TICK_INTERVAL" envDefault:"5s"`
	IndexLease         time.Duration `env:"INDEX_LEASE_DURATION" envDefault:"10m"`
	IndexBuildTimeout  time.Duration `env:"INDEX_BUILD_TIMEOUT" envDefault:"0s"`
	TenantCacheTTL     time.Duration `env:"TENANT_CACHE_TTL" envDefault:"1m"`
}

func main() {
	ctx := context.Background()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "records-api",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{
		ConnString:      cfg.DatabaseURL,
		ApplicationName: "palmyra-records-api",
		MaxConns:        cfg.DBMaxConns,
		ConnectTimeout:  cfg.DBConnectTimeout,
	})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	if cfg.BootstrapSchema {
		if err := persistence.BootstrapSchema(ctx, pool, persistence.BootstrapOptions{RowLevelSecurity: cfg.RowLevelSecurity}); err != nil {
			logger.Fatal("bootstrap schema", zap.Error(err))
		}
		logger.Info("schema bootstrapped", zap.Bool("row_level_security", cfg.RowLevelSecurity))
	}

	tenantDB := persistence.NewTenantDB(persistence.TenantDBConfig{Pool: pool})
	tenantStore := persistence.NewTenantStore(tenantDB)
	metadataStore := persistence.NewMetadataStore(tenantDB)
	recordStore := persistence.NewRecordStore(tenantDB)
	edgeStore := persistence.NewEdgeStore(tenantDB)
	indexJobStore := persistence.NewIndexJobStore(tenantDB)

	emitter := events.NewEmitter(buildPublisher(cfg, pool, logger), logger)

	indexManager, err := indexer.NewManager(indexJobStore, metadataStore, logger, indexer.Config{
		TickInterval: cfg.IndexTickInterval,
		Lease:        cfg.IndexLease,
		BuildTimeout: cfg.IndexBuildTimeout,
	})
	if err != nil {
		logger.Fatal("init index manager", zap.Error(err))
	}
	indexManager.Start(ctx)
	defer indexManager.Stop(cfg.ShutdownTimeout)

	tenantService := tenantsservice.New(tenantsrepo.NewPostgresRepository(tenantStore))
	tenantHTTPHandler := tenantshandler.New(tenantService, logger)

	entityTypesService := entitytypesservice.New(entitytypesrepo.New(metadataStore), indexManager, emitter)
	entityTypesHTTPHandler := entitytypeshandler.New(entityTypesService, logger)

	recordsService := recordsservice.New(
		recordsrepo.New(recordStore, metadataStore),
		validation.NewValidator(cfg.ValidatorCacheSize),
		emitter,
	)
	recordsHTTPHandler := recordshandler.New(recordsService, logger)

	relationsService := relationsservice.New(relationsrepo.New(edgeStore, metadataStore, recordStore), emitter)
	relationsHTTPHandler := relationshandler.New(relationsService, logger)

	indexJobsService := indexjobsservice.New(indexjobsrepo.New(indexJobStore), indexManager)
	indexJobsHTTPHandler := indexjobshandler.New(indexJobsService, logger)

	authMiddleware := buildAuthMiddleware(ctx, cfg, logger)

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.CORS(cfg.CORSAllowedOrigins),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", readiness(pool, logger))

	apiRouter := chi.NewRouter()
	apiRouter.Use(authMiddleware)
	apiRouter.Use(platformauth.RequireAuthenticated)
	apiRouter.Use(tenantmiddleware.WithTenantContext(tenantService, tenantmiddleware.Config{
		CacheTTL: cfg.TenantCacheTTL,
	}))
	apiRouter.Use(platformmiddleware.RequestTrace)

	tenantHTTPHandler.Routes(apiRouter)
	entityTypesHTTPHandler.Routes(apiRouter)
	recordsHTTPHandler.Routes(apiRouter)
	relationsHTTPHandler.Routes(apiRouter)
	indexJobsHTTPHandler.Routes(apiRouter)

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// buildPublisher selects where change events go. NOTIFY delivery is always paired with
// the log publisher so events stay visible when nobody listens.
func buildPublisher(cfg config, pool *pgxpool.Pool, logger *zap.Logger) events.Publisher {
	logPublisher := events.NewLogPublisher(logger)
	switch cfg.EventsBackend {
	case "log":
		return logPublisher
	case "notify":
		return events.Multi{logPublisher, events.NewNotifyPublisher(pool)}
	default:
		logger.Fatal("unsupported events backend", zap.String("backend", cfg.EventsBackend))
		return nil
	}
}

func readiness(pool *pgxpool.Pool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			platformlogging.FromRequest(r, logger).Warn("readiness check failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}
