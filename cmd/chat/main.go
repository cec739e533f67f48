package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pabluwu/api-quedicenloscandidatos/internal/app"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/config"
	"github.com/pabluwu/api-quedicenloscandidatos/internal/rag"
	"github.com/pabluwu/api-quedicenloscandidatos/pkg/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

const exitWord = "salir"

type answerer interface {
	Query(ctx context.Context, question string) (models.QueryResult, error)
}

func main() {
	fs := pflag.NewFlagSet("candidatos-chat", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("log_level", cfg.LogLevel).Msg("invalid log level")
	}
	// Keep the terminal for the conversation; only warnings and up go to stderr.
	if level < zerolog.WarnLevel {
		level = zerolog.WarnLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	if err := repl(ctx, os.Stdin, os.Stdout, a.RAG, cfg.Timeout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("chat ended")
	}
}

// repl reads one question per line until EOF or the exit word.
func repl(ctx context.Context, in io.Reader, out io.Writer, svc answerer, timeout time.Duration) error {
	fmt.Fprintf(out, "Chatbot listo. Escribe '%s' para terminar.\n", exitWord)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nTu pregunta: ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		question := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(question, exitWord) {
			return nil
		}
		if question == "" {
			continue
		}

		res, err := ask(ctx, svc, question, timeout)
		if err != nil {
			if errors.Is(err, rag.ErrEmptyQuestion) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "\nError: %v\n", err)
			continue
		}

		fmt.Fprintln(out, "\n--- Respuesta de la IA ---")
		for _, ans := range res.Answers {
			fmt.Fprintf(out, "Candidato %s: %s\n", ans.Candidate, ans.Response)
		}
		fmt.Fprintln(out, "-------------------------")
	}
}

func ask(ctx context.Context, svc answerer, question string, timeout time.Duration) (models.QueryResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return svc.Query(ctx, question)
}
