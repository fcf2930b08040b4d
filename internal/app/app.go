package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/usersvc/internal/config"
	"github.com/simp-lee/usersvc/internal/domain"
	"github.com/simp-lee/usersvc/internal/middleware"
	"github.com/simp-lee/usersvc/internal/module/user"
	"github.com/simp-lee/usersvc/internal/pkg"
	"github.com/simp-lee/usersvc/internal/platform/authclient"
	"github.com/simp-lee/usersvc/internal/platform/cache"
	"github.com/simp-lee/usersvc/internal/platform/events"
	"github.com/simp-lee/usersvc/internal/platform/httpclient"
	"github.com/simp-lee/usersvc/internal/transport/rpc"
)

const shutdownTimeout = 5 * time.Second

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine     *gin.Engine
	db         *gorm.DB
	redis      *redis.Client
	dispatcher *rpc.Dispatcher
	rpcServer  *rpc.Server
	logger     *logger.Logger
	cfg        *config.Config
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

var newHTTPServer = func(addr string, handler http.Handler) httpServer {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the database, Redis when a component needs it, the
// user store with its optional cache, events, the auth client, the message
// dispatcher, middleware and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior")
	}

	// 2. Setup database.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if !success {
			config.CloseDatabase(db)
		}
	}()

	// 3. AutoMigrate in debug mode only.
	if cfg.Server.Mode == gin.DebugMode {
		if err := db.AutoMigrate(&domain.User{}); err != nil {
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
		log.Info("auto migration completed")
	}

	// 4. Setup Redis when the cache, events, rpc server or rpc auth transport needs it.
	var rdb *redis.Client
	if cfg.RedisRequired() {
		rdb, err = config.SetupRedis(&cfg.Redis, log.Logger)
		if err != nil {
			return nil, fmt.Errorf("setup redis: %w", err)
		}
		defer func() {
			if success {
				return
			}
			if err := rdb.Close(); err != nil {
				slog.Error("redis close error", slog.Any("error", err))
			}
		}()
	}

	// 5. Manual dependency injection: store -> directory -> registrar -> module.
	store := newUserStore(cfg, db, rdb, log.Logger)
	publisher := newUserEvents(cfg, rdb, log.Logger)
	auth, err := newAuthService(cfg, rdb, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup auth client: %w", err)
	}

	directory := user.NewDirectory(store, publisher, log.Logger)
	registrar := user.NewRegistrar(auth, directory, log.Logger)
	modules := []Module{user.NewModule(registrar, directory)}

	// 6. Message dispatcher and, when enabled, the stream server.
	if err := pkg.RegisterBindingValidations(); err != nil {
		return nil, fmt.Errorf("register validations: %w", err)
	}
	dispatcher := rpc.NewDispatcher(nil)
	for _, m := range modules {
		m.RegisterPatterns(dispatcher)
	}

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.NewServer(rdb, dispatcher, rpc.ServerConfig{
			Stream:         cfg.RPC.Stream,
			Group:          cfg.RPC.Group,
			Consumer:       cfg.RPC.Consumer,
			BatchSize:      int64(cfg.RPC.BatchSize),
			Block:          config.Duration(cfg.RPC.Block),
			HandlerTimeout: config.Duration(cfg.RPC.HandlerTimeout),
		}, log.Logger)
	}

	// 7. Create Gin engine with custom middleware (not gin.Default()).
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.Use(
		middleware.Recovery(log.Logger),
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			TrustUpstream: cfg.Server.TrustRequestID,
		}),
		middleware.LoggerWithConfig(log.Logger, middleware.LoggerConfig{
			QuietPaths: []string{"/health"},
		}),
		middleware.Timeout(config.Duration(cfg.Server.Timeout)),
	)

	// 8. Register all routes.
	deps := &RouteDeps{Modules: modules, DB: db}
	if rdb != nil {
		deps.Redis = rdb
	}
	if err := RegisterRoutes(engine, deps); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	success = true
	return &App{
		engine:     engine,
		db:         db,
		redis:      rdb,
		dispatcher: dispatcher,
		rpcServer:  rpcServer,
		logger:     log,
		cfg:        cfg,
	}, nil
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

func newUserStore(cfg *config.Config, db *gorm.DB, rdb *redis.Client, log *slog.Logger) domain.UserStore {
	store := user.NewUserRepository(db)
	if !cfg.Cache.Enabled {
		return store
	}
	return cache.NewUserStore(store, rdb, config.Duration(cfg.Cache.TTL), log)
}

func newUserEvents(cfg *config.Config, rdb *redis.Client, log *slog.Logger) domain.UserEvents {
	if !cfg.Events.Enabled {
		return events.Noop{}
	}
	return events.NewPublisher(rdb, cfg.Events.Stream, log)
}

func newAuthService(cfg *config.Config, rdb *redis.Client, log *slog.Logger) (domain.AuthService, error) {
	a := cfg.AuthService
	timeout := config.Duration(a.Timeout)

	switch a.Transport {
	case config.TransportHTTP:
		return authclient.NewHTTPClient(authclient.HTTPConfig{
			BaseURL:      a.BaseURL,
			RegisterPath: a.RegisterPath,
		}, httpclient.New(timeout), log), nil
	case config.TransportRPC:
		if rdb == nil {
			return nil, errors.New("rpc auth transport requires redis")
		}
		sender := rpc.NewClient(rdb, rpc.ClientConfig{Stream: a.Stream, Timeout: timeout})
		return authclient.NewRPCClient(sender, a.Pattern), nil
	default:
		return nil, fmt.Errorf("unsupported auth_service.transport %q", a.Transport)
	}
}

// Run starts the HTTP server and, when enabled, the message server, then
// blocks until a shutdown signal is received. It performs graceful shutdown
// with a 5-second deadline and closes Redis, the database and the logger.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := slog.Default()
	if a.logger != nil {
		log = a.logger.Logger
	}

	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine)

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	if a.rpcServer != nil {
		if err := a.rpcServer.Start(ctx); err != nil {
			runErr = fmt.Errorf("rpc server error: %w", err)
		}
	}

	if runErr == nil {
		errCh := make(chan error, 1)
		go func() {
			log.Info("server started", slog.String("addr", addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
		case err := <-errCh:
			runErr = fmt.Errorf("server error: %w", err)
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if runErr == nil {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("server shutdown error", slog.Any("error", err))
			}
		}
		if a.rpcServer != nil {
			if err := a.rpcServer.Close(shutdownCtx); err != nil {
				log.Error("rpc server shutdown error", slog.Any("error", err))
			}
		}
	}

	a.closeResources(log)

	log.Info("server stopped")
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}

	return runErr
}

func (a *App) closeResources(log *slog.Logger) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.Error("redis close error", slog.Any("error", err))
		} else {
			log.Info("redis connection closed")
		}
	}

	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error("database close error", slog.Any("error", err))
			} else {
				log.Info("database connection closed")
			}
		}
	}
}

// Handler exposes the configured HTTP handler.
func (a *App) Handler() http.Handler {
	return a.engine
}

// Dispatcher exposes the message dispatcher the modules registered on.
func (a *App) Dispatcher() *rpc.Dispatcher {
	return a.dispatcher
}
