package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"time"

	"feedesk/internal/backend"
	"feedesk/internal/cli"
	"feedesk/internal/config"
	"feedesk/internal/core"
	apphttp "feedesk/internal/http"
	"feedesk/internal/identity"
	"feedesk/internal/log"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger)
	result, err := factory.CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to create backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(result.Backend, result.Publisher, apphttp.Options{
		Addr:               ":" + cfg.Port,
		Provider:           identityProvider(cfg, logger),
		CSRFKey:            csrfKey(cfg, logger),
		ProofBaseURL:       proofBaseURL(cfg),
		SecureCookies:      cfg.SecureCookies,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
	})
	if err != nil {
		logger.Error("Failed to create server", "error", err)
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting feedesk server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"payment_events", result.Publisher != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// identityProvider verifies platform session tokens. DEV_ROLE signs every
// request in as a fixed user of the seeded school instead.
func identityProvider(cfg *config.Config, logger *log.Logger) identity.Provider {
	if cfg.DevRole == "" {
		return identity.NewJWTProvider(cfg.SessionSecret)
	}
	role := core.ParseRole(cfg.DevRole)
	logger.Warn("DEV_ROLE is set, every request is signed in as a development user", "role", role)
	return identity.StaticProvider{Identity: core.Identity{
		UserID:   "dev-" + string(role),
		Name:     "Developer (" + role.Label() + ")",
		Role:     role,
		SchoolID: cfg.SeedSchoolID,
	}}
}

// proofBaseURL is where proof paths returned by the fee API live. The bundled
// backends hand out their own references.
func proofBaseURL(cfg *config.Config) string {
	if cfg.DataBackend != string(backend.APIBackend) {
		return ""
	}
	return cfg.APIBaseURL
}

// csrfKey returns CSRF_KEY, or a random key that does not survive a restart.
func csrfKey(cfg *config.Config, logger *log.Logger) []byte {
	if cfg.CSRFKey != "" {
		return []byte(cfg.CSRFKey)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		logger.Error("Failed to generate CSRF key", "error", err)
		os.Exit(1)
	}
	logger.Warn("CSRF_KEY not set, using a random key; open forms expire on restart")
	return key
}
