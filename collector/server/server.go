// Package server wires configuration into a running collector: storage
// backends, audit engine, rate limiter, auth and the HTTP listener.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/vigil-systems/vigil/collector/internal/auth"
	"github.com/vigil-systems/vigil/collector/internal/handlers"
	"github.com/vigil-systems/vigil/collector/internal/ratelimit"
	"github.com/vigil-systems/vigil/common/config"
	"github.com/vigil-systems/vigil/common/logging"
	"github.com/vigil-systems/vigil/engine"
	"github.com/vigil-systems/vigil/filter"
	"github.com/vigil-systems/vigil/sanitize"
	"github.com/vigil-systems/vigil/storage"
	"github.com/vigil-systems/vigil/storage/file"
	"github.com/vigil-systems/vigil/storage/natspub"
	"github.com/vigil-systems/vigil/storage/opensearch"
	"github.com/vigil-systems/vigil/storage/postgres"
)

const shutdownGrace = 10 * time.Second

// Run builds the collector from configuration and serves until ctx is
// canceled.
func Run(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	backends, pgStore, err := buildBackends(ctx, cfg.Vigil.Storage.Backends, cfg.Vigil.Application, logger)
	if err != nil {
		return err
	}

	chain, err := filter.FromSpecs(cfg.Vigil.Filters)
	if err != nil {
		return err
	}

	sanitizerOpts := []sanitize.Option{sanitize.WithLogger(logger.Logger)}
	if cfg.Vigil.Sanitization.MaxDepth > 0 {
		sanitizerOpts = append(sanitizerOpts, sanitize.WithMaxDepth(cfg.Vigil.Sanitization.MaxDepth))
	}

	eng, err := engine.New(engine.Config{
		Enabled:                 cfg.Vigil.Enabled,
		Application:             cfg.Vigil.Application,
		Environment:             cfg.Vigil.Environment,
		SanitizationEnabled:     cfg.Vigil.Sanitization.Enabled,
		FailOnSanitizationError: cfg.Vigil.Sanitization.FailOnError,
		SigningKey:              cfg.Vigil.SigningKey,
		Logger:                  logger.Logger,
	},
		engine.WithBackends(backends...),
		engine.WithFilters(chain),
		engine.WithSanitizer(sanitize.New(sanitizerOpts...)),
	)
	if err != nil {
		return err
	}
	defer func() {
		if err := eng.Shutdown(); err != nil {
			logger.Error("engine shutdown error", logging.Error(err))
		}
	}()

	limiter, err := buildRateLimiter(cfg, logger)
	if err != nil {
		return err
	}
	defer limiter.Close()

	authenticator := auth.New(cfg.Auth.APIKeys, cfg.Auth.Disabled, logger.Logger)
	handler := handlers.New(eng, pgStore, limiter, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      NewRouter(handler, authenticator, cfg.Server.CORSOrigins),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collector listening", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down collector")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

// buildBackends instantiates every enabled backend spec. The postgres
// backend is additionally returned on its own: it serves the query API.
func buildBackends(ctx context.Context, specs []storage.Spec, appName string, logger *logging.Logger) ([]storage.Backend, *postgres.Backend, error) {
	var backends []storage.Backend
	var pgStore *postgres.Backend

	for _, spec := range specs {
		if !spec.Enabled {
			continue
		}

		switch spec.Type {
		case "file":
			b, err := file.New(file.Config{
				Directory:       spec.Directory,
				Format:          spec.Format,
				FilenamePattern: spec.FilenamePattern,
				AppName:         appName,
				Logger:          logger.Logger,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("file backend: %w", err)
			}
			backends = append(backends, b)

		case "postgres":
			if err := postgres.Migrate(spec.DSN); err != nil {
				return nil, nil, fmt.Errorf("postgres backend: %w", err)
			}
			b, err := postgres.New(ctx, spec.DSN)
			if err != nil {
				return nil, nil, fmt.Errorf("postgres backend: %w", err)
			}
			backends = append(backends, b)
			pgStore = b

		case "opensearch":
			b, err := opensearch.New(opensearch.Config{
				URL:           spec.URL,
				Username:      spec.Username,
				Password:      spec.Password,
				TLSSkipVerify: spec.Insecure,
				IndexPrefix:   spec.IndexPrefix,
				Logger:        logger.Logger,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("opensearch backend: %w", err)
			}
			backends = append(backends, b)

		case "nats":
			b, err := natspub.New(natspub.Config{
				URL:     spec.URL,
				Subject: spec.Subject,
				Name:    appName + "-collector",
			})
			if err != nil {
				return nil, nil, fmt.Errorf("nats backend: %w", err)
			}
			backends = append(backends, b)

		default:
			return nil, nil, fmt.Errorf("unknown storage backend type %q", spec.Type)
		}
	}

	return backends, pgStore, nil
}

func buildRateLimiter(cfg *config.Config, logger *logging.Logger) (ratelimit.RateLimiter, error) {
	if !cfg.RateLimit.Enabled {
		return ratelimit.NoOpRateLimiter{}, nil
	}
	limiter, err := ratelimit.NewRedisRateLimiter(cfg.Redis.URL, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	logger.Info("rate limiting enabled",
		slog.Int("requests", cfg.RateLimit.Requests),
		slog.Duration("window", cfg.RateLimit.Window),
	)
	return limiter, nil
}
