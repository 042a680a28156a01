// Package main provides the interactive CLI entry point for the
// PostgreSQL agent.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/forfd8960/postgres-agent/internal/agent"
	"github.com/forfd8960/postgres-agent/internal/audit"
	"github.com/forfd8960/postgres-agent/internal/config"
	"github.com/forfd8960/postgres-agent/internal/db"
	"github.com/forfd8960/postgres-agent/internal/llm"
	"github.com/forfd8960/postgres-agent/internal/safety"
	"github.com/forfd8960/postgres-agent/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config)")
	level := flag.String("safety-level", "", "Safety level: read-only, balanced, permissive")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true})

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to load config")
		}
		cfg = loaded
	}
	if *dsn != "" {
		cfg.Database.DSN = *dsn
	}
	if *level != "" {
		cfg.Safety.Level = *level
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if cfg.Database.DSN == "" {
		log.Fatal().Msg("database DSN is required (--dsn or config)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()

	executor, err := db.NewPostgresExecutor(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer executor.Close()

	client, err := llm.NewLangchainClient(llm.LangchainConfig{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create LLM client")
	}

	sink := buildSink(cfg)
	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry, executor)

	ag := agent.New(
		agent.NewContext(cfg.Agent.MaxHistory, cfg.Agent.MaxTokens),
		registry,
		client,
		sink,
		agent.Config{
			MaxIterations:     cfg.Agent.MaxIterations,
			SafetyLevel:       cfg.SafetyLevel(),
			ReadOnly:          cfg.Database.ReadOnly,
			OperationTimeout:  cfg.Agent.OperationTimeout.Std(),
			ToolTimeout:       cfg.Agent.ToolTimeout.Std(),
			Model:             cfg.LLM.Model,
			Temperature:       cfg.LLM.Temperature,
			MaxResponseTokens: cfg.LLM.MaxTokens,
			User:              currentUser(),
			Database:          cfg.Database.Name,
		},
	)

	info := client.ProviderInfo()
	fmt.Printf("pg-agent %s — %s/%s, safety level %s\n", Version, info.Provider, info.Model, cfg.Safety.Level)
	fmt.Println("Type a question, or \"exit\" to quit.")

	repl(ctx, ag)
}

// repl reads queries from stdin and pumps the agent, including the
// confirmation suspension points.
func repl(ctx context.Context, ag *agent.Agent) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return
		}

		resp, err := ag.Run(ctx, input)
		for err == nil && resp.Kind == agent.KindPendingConfirmation {
			resp, err = pumpConfirmation(ctx, ag, scanner, resp.Confirmation)
		}
		report(resp, err)
	}
}

// pumpConfirmation resolves one pending confirmation via stdin.
func pumpConfirmation(ctx context.Context, ag *agent.Agent, scanner *bufio.Scanner, req *safety.ConfirmationRequest) (*agent.Response, error) {
	fmt.Printf("The agent wants to run:\n  %s\n", req.SQL)
	switch req.Level {
	case safety.ConfirmTyped:
		fmt.Printf("Type %q to approve, anything else to reject: ", req.ExpectedMatch)
		if !scanner.Scan() {
			return ag.Reject(ctx)
		}
		value := strings.TrimSpace(scanner.Text())
		resp, err := ag.ConfirmTyped(ctx, value)
		if errors.Is(err, safety.ErrTypedMismatch) {
			fmt.Println("Confirmation did not match; operation rejected.")
			return ag.Reject(ctx)
		}
		return resp, err
	case safety.ConfirmAdmin:
		fmt.Print("Admin approval required. Approve? [y/N]: ")
		if scanYes(scanner) {
			return ag.AdminApprove(ctx)
		}
		return ag.Reject(ctx)
	default:
		fmt.Print("Approve? [y/N]: ")
		if scanYes(scanner) {
			return ag.Confirm(ctx)
		}
		return ag.Reject(ctx)
	}
}

func scanYes(scanner *bufio.Scanner) bool {
	if !scanner.Scan() {
		return false
	}
	v := strings.ToLower(strings.TrimSpace(scanner.Text()))
	return v == "y" || v == "yes"
}

func report(resp *agent.Response, err error) {
	if err != nil {
		fmt.Printf("error: %v\n", err)
		return
	}
	switch resp.Kind {
	case agent.KindAnswer:
		fmt.Println(resp.Answer)
	case agent.KindRejected:
		fmt.Println("Operation rejected.")
	}
}

func buildSink(cfg *config.Settings) audit.Sink {
	sinks := audit.MultiSink{audit.NewLogSink()}
	if cfg.Audit.DSN != "" {
		store, err := audit.NewStore(audit.StoreConfig{DSN: cfg.Audit.DSN})
		if err != nil {
			log.Warn().Err(err).Msg("Audit store unavailable, falling back to log sink")
		} else {
			sinks = append(sinks, store)
		}
	}
	return sinks
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}
