package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polzovatel/elder-web-guide/internal/config"
	"github.com/polzovatel/elder-web-guide/internal/instruct"
	"github.com/polzovatel/elder-web-guide/internal/llm"
	"github.com/polzovatel/elder-web-guide/internal/matcher"
	"github.com/polzovatel/elder-web-guide/internal/reason"
	"github.com/polzovatel/elder-web-guide/internal/selector"
	"github.com/polzovatel/elder-web-guide/internal/server"
	"github.com/polzovatel/elder-web-guide/internal/store"
)

type cliOptions struct {
	configPath string
	addr       string
	sessions   string
}

func main() {
	_ = godotenv.Load()
	opts := parseFlags()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}
	if opts.sessions != "" {
		cfg.Sessions.Dir = opts.sessions
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clients, err := llm.NewRegistry(log.With().Str("comp", "llm").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("llm init")
	}
	runner := reason.NewRunner(clients, log.With().Str("comp", "reason").Logger())

	st := store.New(cfg.Sessions.Dir, log.With().Str("comp", "store").Logger())
	gen := instruct.New(runner, st, cfg.Reasoning.GenerationModels, cfg.Reasoning.MaxSteps, log.With().Str("comp", "instruct").Logger())
	match := matcher.New(runner, cfg.Reasoning.MatchingModels, log.With().Str("comp", "matcher").Logger())
	sel := selector.New(st, match, log.With().Str("comp", "selector").Logger())

	srv := server.New(cfg, st, gen, sel, os.Getenv("OPENAI_API_KEY"), log.With().Str("comp", "server").Logger())
	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("shutdown complete")
}

func parseFlags() cliOptions {
	configPath := flag.String("config", "", "Path to YAML config file")
	addr := flag.String("addr", "", "Listen address override")
	sessions := flag.String("sessions", "", "Session directory override")
	flag.Parse()
	return cliOptions{
		configPath: strings.TrimSpace(*configPath),
		addr:       strings.TrimSpace(*addr),
		sessions:   strings.TrimSpace(*sessions),
	}
}
