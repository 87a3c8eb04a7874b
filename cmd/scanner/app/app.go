// Package app wires the scanner's collaborators together and owns the
// process lifecycle.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"setbull_trader/cmd/scanner/transport"
	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
	"setbull_trader/internal/marketdata"
	"setbull_trader/internal/orchestrator"
	"setbull_trader/internal/repository/alertaudit"
	"setbull_trader/pkg/cache"
	"setbull_trader/pkg/database"
	"setbull_trader/pkg/log"
)

// App owns the scanner's HTTP server and Orchestrator.
type App struct {
	cfg        *config.Config
	router     *gin.Engine
	httpServer *http.Server
	orch       *orchestrator.Orchestrator
}

// NewApp loads configuration, builds the ambient two-tier cache, the
// market-data client, the Orchestrator, and the gin router.
func NewApp() *App {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("scanner: failed to load configuration: %v", err)
	}
	log.Info("scanner: configuration loaded (session %s-%s ET)", cfg.Session.Start, cfg.Session.End)

	cfgStore := config.NewStore(cfg)

	inmem := cache.NewInMemoryCache(cache.InMemConfig{TTL: cfg.Cache.InMem.TTL, CleanUpTTL: cfg.Cache.InMem.CleanUpTTL})
	var respCache cache.API
	if cfg.Cache.Redis.Disable {
		respCache = cache.NewCacheManager(inmem, nil)
	} else {
		redisClient := cache.NewRedisStore(cache.RedisConfig{
			Host:           cfg.Cache.Redis.Host,
			Port:           cfg.Cache.Redis.Port,
			Database:       cfg.Cache.Redis.Database,
			ConnectTimeout: cfg.Cache.Redis.ConnectTimeout,
			ReadTimeout:    cfg.Cache.Redis.ReadTimeout,
			WriteTimeout:   cfg.Cache.Redis.WriteTimeout,
			PoolSize:       cfg.Cache.Redis.PoolSize,
			MaxRetry:       cfg.Cache.Redis.MaxRetry,
			MinIdleConns:   cfg.Cache.Redis.MinIdleConns,
		})
		respCache = cache.NewCacheManager(inmem, redisClient)
	}

	client := marketdata.NewClient(cfgStore, respCache)
	clk := clock.New(cfg.Dev.OverrideNow)
	orch := orchestrator.New(cfgStore, clk, client)

	if !cfg.Audit.Disable {
		attachAuditSink(orch, cfg)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handler := transport.NewHTTPHandler(orch)
	handler.RegisterRoutes(router)

	return &App{cfg: cfg, router: router, orch: orch}
}

// Run starts the Orchestrator and the HTTP server, and blocks until an
// interrupt/terminate signal or a fatal server error, then shuts down
// both gracefully.
func (a *App) Run() error {
	ctx, cancelOrch := context.WithCancel(context.Background())
	defer cancelOrch()

	if err := a.orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", a.cfg.Server.Port),
		Handler:      a.router,
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("scanner: HTTP server listening on port %s", a.cfg.Server.Port)
		serverErrors <- a.httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.orch.Stop()
		return fmt.Errorf("server error: %w", err)

	case <-shutdown:
		log.Info("scanner: shutting down gracefully...")
		a.orch.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.httpServer.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}
	return nil
}

// attachAuditSink opens the optional alert-audit database connection,
// applies its pending migrations, and installs the repository as the
// Dispatcher's best-effort persistence subscriber. Connection or migration
// failure only disables the sink, per §4.9 — it never prevents the scanner
// from starting.
func attachAuditSink(orch *orchestrator.Orchestrator, cfg *config.Config) {
	dbCfg := database.Config{
		MasterDataSource: database.MasterDs{
			User:     cfg.Audit.User,
			Password: cfg.Audit.Password,
			Host:     cfg.Audit.Host,
			DBName:   cfg.Audit.DBName,
		},
	}

	master, _, err := database.OpenMaster(context.Background(), dbCfg)
	if err != nil {
		log.Warn("scanner: alert-audit sink disabled, could not connect: %v", err)
		return
	}

	if err := database.NewMigrationHandler(master, dbCfg).ApplyMigrations(); err != nil {
		log.Warn("scanner: alert-audit sink disabled, migration failed: %v", err)
		return
	}

	repo := alertaudit.New(master.DB)
	orch.SetAuditSink(func(alert domain.Alert) error {
		return repo.Store(context.Background(), alert)
	})
}
