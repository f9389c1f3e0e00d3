// Package main provides a CLI that sends a prompt through the gateway
// without starting the HTTP server.
// Usage:
//
//	OPENAI_API_KEY=sk-xxx go run ./cmd/llmchat \
//	  -model=openai/gpt-4o-mini \
//	  -prompt="Say hello" \
//	  -stream
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"llmgate/config"
	"llmgate/internal/app"
	"llmgate/internal/logging"
)

func main() {
	var opts options
	flag.StringVar(&opts.Model, "model", "openai/gpt-4o-mini", "Provider-prefixed model, e.g. openai/gpt-4o-mini")
	flag.StringVar(&opts.Prompt, "prompt", "", "User prompt (read from stdin when empty)")
	flag.StringVar(&opts.System, "system", "", "Optional system prompt")
	flag.BoolVar(&opts.Stream, "stream", false, "Print chunks as they arrive")
	flag.IntVar(&opts.Count, "n", 1, "Number of concurrent completions to run")
	flag.Float64Var(&opts.Temperature, "temperature", -1, "Sampling temperature (unset when negative)")
	flag.IntVar(&opts.MaxTokens, "max-tokens", 0, "Maximum completion tokens (unset when 0)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	if opts.Prompt == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading prompt: %v\n", err)
			os.Exit(1)
		}
		opts.Prompt = strings.TrimSpace(string(data))
	}

	result, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	logCfg := result.Config.Logging
	if os.Getenv("LOG_LEVEL") == "" {
		logCfg.Level = "warn"
	}
	slog.SetDefault(slog.New(logging.NewHandler(os.Stderr, logCfg)))

	factory := app.DefaultFactory()
	components, err := app.BuildGateway(result.Config, factory, nil, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	if err := run(ctx, components.Gateway, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
