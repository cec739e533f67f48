package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/ai"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

type modelLister interface {
	ListModels(ctx context.Context) ([]ai.ModelInfo, error)
}

func main() {
	fs := pflag.NewFlagSet("candidatos-models", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	clientConfig, err := cfg.ClientConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid provider")
	}
	if clientConfig.Provider != ai.ProviderGemini && clientConfig.Provider != ai.ProviderVertexAI {
		log.Fatal().Str("provider", cfg.Provider).Msg("model listing is only available for gemini and vertexai")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := ai.NewGeminiClient(ctx, clientConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("verifica tu GOOGLE_API_KEY y tu conexión a internet")
	}

	if err := printModels(ctx, client, os.Stdout); err != nil {
		log.Fatal().Err(err).Msg("ocurrió un error al listar los modelos")
	}
}

func printModels(ctx context.Context, l modelLister, out io.Writer) error {
	models, err := l.ListModels(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Listando modelos disponibles de Google Gemini...")
	for _, m := range models {
		fmt.Fprintf(out, "\nNombre del Modelo: %s\n", m.Name)
		fmt.Fprintf(out, "Descripción: %s\n", m.Description)
		fmt.Fprintf(out, "Métodos Soportados: %s\n", strings.Join(m.Actions, ", "))
	}
	return nil
}
