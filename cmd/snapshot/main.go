// Command snapshot loads a page in a headless browser and prints its
// interactive elements as JSON, matching what the extension sends the
// gateway. Useful for trying prompts against real pages.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polzovatel/elder-web-guide/internal/browser"
	"github.com/polzovatel/elder-web-guide/internal/snapshot"
)

func main() {
	_ = godotenv.Load()
	url := flag.String("url", "", "Page URL to snapshot")
	limit := flag.Int("limit", 150, "Max elements to collect")
	timeout := flag.Duration("timeout", 60*time.Second, "Overall deadline")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if strings.TrimSpace(*url) == "" {
		log.Fatal().Msg("-url is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	launcher, err := browser.NewLauncher(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("browser init")
	}
	defer launcher.Close()

	pg, cleanup, err := launcher.OpenPage(ctx, *url)
	if err != nil {
		log.Fatal().Err(err).Msg("open page")
	}
	defer cleanup()

	elems, err := snapshot.Collect(ctx, pg, *limit)
	if err != nil {
		log.Fatal().Err(err).Msg("collect elements")
	}

	out, err := json.MarshalIndent(elems, "", "  ")
	if err != nil {
		log.Fatal().Err(err).Msg("encode elements")
	}
	fmt.Println(string(out))
}
