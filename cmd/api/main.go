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

	"github.com/pabluwu/api-quedicenloscandidatos/internal/app"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/auth"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("candidatos-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	log.Logger = logger
	logger.Info().Str("provider", cfg.Provider).Str("collection", cfg.Collection).
		Strs("candidates", cfg.Candidates.IDs()).Bool("auth_enabled", cfg.Auth.Enabled).
		Msg("starting candidatos api")

	auth.InitializeAuth(cfg.Auth.APIKey, cfg.Auth.JwtSecret, cfg.Auth.TokenTTL, cfg.Auth.Enabled)
	if !auth.IsAuthEnabled() {
		logger.Warn().Msg("authentication is DISABLED - running in open mode")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}

	srv := &server{
		rag:        a.RAG,
		counts:     a.Store,
		collection: cfg.Collection,
		candidates: cfg.Candidates,
		timeout:    cfg.Timeout,
	}

	handler := hlog.NewHandler(logger)(
		hlog.RequestIDHandler("req_id", "X-Request-Id")(
			hlog.AccessHandler(func(r *http.Request, status, size int, dur time.Duration) {
				hlog.FromRequest(r).Info().Str("method", r.Method).Str("path", r.URL.Path).Int("status", status).Int("size", size).Dur("dur", dur).Msg("http")
			})(srv.routes()),
		),
	)

	address := fmt.Sprintf(":%d", cfg.Port)
	s := &http.Server{Addr: address, Handler: handler, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown")
		}
	}()

	logger.Info().Str("addr", s.Addr).Msg("api server listening")
	if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
