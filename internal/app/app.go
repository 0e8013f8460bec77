package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	"licensegate/internal/license"
	"licensegate/internal/middleware"
	"licensegate/internal/operations"
	"licensegate/internal/retry"
	"licensegate/internal/security"
	"licensegate/internal/token"
	handlers "licensegate/internal/transport/http"
	ws "licensegate/internal/websocket"
)

// Options overrides parts of the wiring. The zero value builds the
// production application.
type Options struct {
	// Config is used as is when set; otherwise ConfigPath is loaded
	Config     *config.Config
	ConfigPath string

	Logger   *slog.Logger
	Clock    infrastructure.Clock
	Remote   license.RemoteClient
	Probe    security.Probe
	Handlers Handlers
}

// Application holds the wired components of the desktop backend
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Fingerprints  *security.FingerprintManager
	License       *license.Validator
	Refresher     *license.Refresher
	Queue         *operations.Queue
	WebSocketHub  *ws.Hub
	Router        http.Handler
	Server        *http.Server

	ownsLogger bool
}

// New wires the application. Nothing runs until Run is called.
func New(ctx context.Context, opts Options) (*Application, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(opts.ConfigPath); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	a := &Application{Config: cfg, Logger: opts.Logger}
	if a.Logger == nil {
		logger, err := infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.Logger = logger
		a.ownsLogger = true
	}
	a.Logger.InfoContext(ctx, "application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	providers, err := infrastructure.InitializeOTel(infrastructure.NewOTelConfig(cfg.Telemetry), a.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}
	a.OTelProviders = providers

	if err := a.initializeLicense(ctx, opts); err != nil {
		return nil, err
	}
	if err := a.initializeQueue(ctx, opts); err != nil {
		return nil, err
	}
	a.setupRouter()
	a.createServer()
	return a, nil
}

// initializeLicense builds the fingerprint, the token validator and the
// license validator, then loads the persisted cache and offline state
func (a *Application) initializeLicense(ctx context.Context, opts Options) error {
	cfg := a.Config.License
	clock := infrastructure.OrSystem(opts.Clock)

	fpOpts := []security.Option{security.WithClock(clock), security.WithLogger(a.Logger)}
	if opts.Probe != nil {
		fpOpts = append(fpOpts, security.WithProbe(opts.Probe))
	}
	a.Fingerprints = security.NewFingerprintManager(fpOpts...)
	fingerprint := a.Fingerprints.Fingerprint()

	alg, ok := token.ParseAlgorithm(cfg.Algorithm)
	if !ok {
		return fmt.Errorf("unsupported token algorithm %q", cfg.Algorithm)
	}
	tokens, err := token.NewValidator(token.ValidatorConfig{
		Secret:    []byte(cfg.TokenSecret),
		Algorithm: alg,
		Issuer:    cfg.Issuer,
		Audience:  cfg.AppID,
		Clock:     clock,
	})
	if err != nil {
		return fmt.Errorf("failed to create token validator: %w", err)
	}

	signer, err := license.NewCacheSigner([]byte(cfg.TokenSecret), fingerprint)
	if err != nil {
		return fmt.Errorf("failed to create cache signer: %w", err)
	}

	remote := opts.Remote
	if remote == nil {
		remote = license.NewHTTPClient(cfg.ServerURL, cfg.NetworkTimeout, a.Logger)
	}

	metrics, err := license.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create license metrics: %w", err)
	}

	validator, err := license.NewValidator(license.Options{
		Remote:      remote,
		Store:       license.NewFileStore(cfg.CacheFile(), cfg.OfflineStateFile(), signer),
		Tokens:      tokens,
		Fingerprint: fingerprint,
		Grace:       license.GraceConfig{WarningThresholdDays: cfg.WarningThresholdDays},
		Clock:       clock,
		Logger:      a.Logger,
		Metrics:     metrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create license validator: %w", err)
	}
	validator.Load(ctx)
	a.License = validator

	a.Refresher = license.NewRefresher(validator, license.RefresherConfig{
		Interval:         cfg.RefreshInterval,
		RefreshThreshold: cfg.RefreshThreshold,
		Policy:           retry.FromConfig(cfg.Retry),
		Logger:           a.Logger,
	})
	return nil
}

// initializeQueue builds the hub and the job queue and subscribes both to
// license results
func (a *Application) initializeQueue(ctx context.Context, opts Options) error {
	hubMetrics, err := ws.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create websocket metrics: %w", err)
	}
	a.WebSocketHub = ws.NewHub(a.Logger, hubMetrics)
	sink := ws.NewHubSink(a.WebSocketHub)

	queueMetrics, err := operations.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("failed to create queue metrics: %w", err)
	}

	jobHandlers := opts.Handlers
	if jobHandlers == nil {
		jobHandlers = DefaultHandlers()
	}
	validator := a.License
	a.Queue = operations.NewQueue(
		operations.ConfigFrom(a.Config.Queue),
		Dispatch(jobHandlers, a.Logger),
		operations.WithClock(opts.Clock),
		operations.WithLogger(a.Logger),
		operations.WithEventSink(sink),
		operations.WithMetrics(queueMetrics),
		operations.WithOfflineVerdict(validator.OfflineVerdict),
		operations.WithSnapshotStore(operations.NewFileSnapshotStore(a.Config.Queue.SnapshotFile)),
	)
	if err := a.Queue.Load(ctx); err != nil {
		a.Logger.WarnContext(ctx, "discarding unreadable job snapshot",
			slog.String("path", a.Config.Queue.SnapshotFile),
			slog.String("error", err.Error()))
	}

	validator.OnResult(func(res *license.ValidationResult) {
		a.Queue.UpdateLicenseState(res)
		sink.PublishLicense(context.Background(), res, validator.GraceStatus())
	})
	if cur := validator.Current(); cur != nil {
		a.Queue.UpdateLicenseState(cur)
	}

	a.Logger.InfoContext(ctx, "job queue ready",
		slog.Int("workers", a.Config.Queue.Workers),
		slog.Any("job_types", jobHandlers.Types()))
	return nil
}

func (a *Application) setupRouter() {
	var limiter *middleware.RateLimiter
	if rl := a.Config.Security.RateLimit; rl.Enabled {
		limiter = middleware.NewRateLimiter(rl.RPS, rl.Burst, a.Logger)
	}
	a.Router = handlers.NewRouter(handlers.RouterConfig{
		License:   a.License,
		Jobs:      a.Queue,
		Logger:    a.Logger,
		RateLimit: limiter,
		Events: ws.Handler(a.WebSocketHub,
			ws.HandlerConfigFrom(a.Config.WebSocket, a.Config.Security.AllowedOrigins)),
		Clients:        a.WebSocketHub,
		Metrics:        a.OTelProviders.PrometheusHTTP,
		RequestTimeout: a.Config.Server.WriteTimeout,
		IncludeStack:   a.Config.Logging.Development,
	})
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           a.Config.Server.Addr(),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
		ErrorLog:       slog.NewLogLogger(a.Logger.Handler(), slog.LevelError),
	}
}

// Run serves on the configured address until ctx is done
func (a *Application) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the hub, the job workers, the license refresher and the HTTP
// server on ln until ctx is done or one of them fails, then shuts down.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.WebSocketHub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return a.Queue.Run(gctx, a.Config.Queue.Workers)
	})
	g.Go(func() error {
		return a.Refresher.Run(gctx)
	})
	g.Go(func() error {
		a.Logger.InfoContext(gctx, "http server listening", slog.String("address", ln.Addr().String()))
		if err := a.Server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down application")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
		defer cancel()
		if err := a.Server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	err := g.Wait()
	a.close()
	return err
}

func (a *Application) shutdownTimeout() time.Duration {
	if d := a.Config.Server.ShutdownTimeout; d > 0 {
		return d
	}
	return 30 * time.Second
}

// close releases telemetry and the log file
func (a *Application) close() {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()
	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(ctx); err != nil {
			a.Logger.Error("error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}
	a.Logger.Info("application shutdown complete")
	if a.ownsLogger {
		if err := infrastructure.CloseLogFile(); err != nil {
			a.Logger.Warn("failed to close log file", slog.String("error", err.Error()))
		}
	}
}
