package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/app"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("candidatos-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	log.Logger = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	log.Info().Str("provider", cfg.Provider).Str("collection", cfg.Collection).
		Strs("candidates", cfg.Candidates.IDs()).Msg("starting ingest")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg))
}

func run(ctx context.Context, cfg config.Specification) int {
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize")
		return 1
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		log.Error().Err(err).Msg("failed to migrate database")
		return 1
	}

	stats, err := a.Indexer().Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ingest failed")
		return 1
	}

	for _, c := range cfg.Candidates {
		log.Info().Str("candidate", c.ID).Int("chunks", stats.PerCandidate[c.ID]).Msg("indexed")
	}
	log.Info().Int("documents", stats.Documents).Int("chunks", stats.Chunks).Msg("collection rebuilt")
	return 0
}
