package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"licensegate/internal/config"
	"licensegate/internal/infrastructure"
	"licensegate/internal/issuer"
	"licensegate/internal/token"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	seedPath := flag.String("seed", "", "YAML file of licenses to serve (overrides issuer.seed_file)")
	flag.Parse()

	if err := run(*configPath, *seedPath); err != nil {
		slog.Error("License issuer failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(configPath, seedPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	if seedPath == "" {
		seedPath = cfg.Issuer.SeedFile
	}
	licenses, err := issuer.LoadSeedFile(seedPath)
	if err != nil {
		return err
	}

	alg, ok := token.ParseAlgorithm(cfg.License.Algorithm)
	if !ok {
		return fmt.Errorf("unsupported token algorithm %q", cfg.License.Algorithm)
	}
	svc, err := issuer.NewService(issuer.NewMemoryRegistry(licenses...), issuer.Config{
		Issuer:    cfg.License.Issuer,
		Audience:  cfg.License.AppID,
		TokenTTL:  cfg.Issuer.TokenTTL,
		Secret:    []byte(cfg.License.TokenSecret),
		Algorithm: alg,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Issuer.Port),
		Handler:      issuer.NewRouter(issuer.NewHandler(svc, logger), logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		logger.Info("license issuer listening",
			slog.String("address", server.Addr),
			slog.Int("licenses", len(licenses)))
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	logger.Info("shutting down license issuer")
	return server.Shutdown(shutdownCtx)
}
