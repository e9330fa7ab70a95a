// Package main is the entry point for the Archie CLI. Archie is a
// persona-driven conversational agent that answers through a structured
// reasoning pipeline with a single optional tool round per request.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/archielabs/archie/internal/agent"
	"github.com/archielabs/archie/internal/backend"
	"github.com/archielabs/archie/internal/compose"
	"github.com/archielabs/archie/internal/config"
	"github.com/archielabs/archie/internal/conversation"
	"github.com/archielabs/archie/internal/llm"
	"github.com/archielabs/archie/internal/logging"
	"github.com/archielabs/archie/internal/persona"
	"github.com/archielabs/archie/internal/prompt"
	"github.com/archielabs/archie/internal/reason"
	"github.com/archielabs/archie/internal/tools"
	"github.com/archielabs/archie/internal/trace"
)

var (
	version = "0.1.0"
	cfgPath string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "archie",
		Short: "Archie - persona-driven conversational agent",
		Long: `Archie answers questions through a structured reasoning pipeline:
every response carries a routing decision, evidence, and a verification
status, and the model may request one round of tool calls (weather,
currency) before finalizing its answer.

Ask a question:        archie ask "weather in Berlin tomorrow?"
List personas:         archie personas
Show traces:           archie traces <conversation-id>`,
	}

	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file path (default ~/.archie/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Archie v%s\n", version)
		},
	})

	rootCmd.AddCommand(askCmd())
	rootCmd.AddCommand(personasCmd())
	rootCmd.AddCommand(tracesCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if cfgPath != "" {
		return config.LoadFromPath(cfgPath)
	}
	return config.Load()
}

func setupLogger(cfg *config.Config) zerolog.Logger {
	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	return logging.Setup(logging.Config{
		Level:   level,
		Console: cfg.Logging.Console,
		Output:  os.Stderr,
	})
}

func askCmd() *cobra.Command {
	var (
		personaKey     string
		conversationID string
		format         string
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a one-shot question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := setupLogger(cfg)

			pipeline, cleanup, err := buildPipeline(cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			resp, err := pipeline.Handle(ctx, agent.Request{
				ConversationID: conversationID,
				Persona:        personaKey,
				Format:         format,
				Text:           strings.Join(args, " "),
			})
			if err != nil {
				return err
			}

			if asJSON {
				return json.NewEncoder(os.Stdout).Encode(resp)
			}
			printResponse(resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&personaKey, "persona", "p", "", "persona key (default from config)")
	cmd.Flags().StringVarP(&conversationID, "conversation", "c", "", "conversation id to continue")
	cmd.Flags().StringVarP(&format, "format", "f", "", "answer format: plain, markdown, or ui")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")
	return cmd
}

func printResponse(resp *compose.AgentResponse) {
	fmt.Println(resp.Text)
	if resp.Metadata != nil {
		fmt.Println()
		out, err := json.MarshalIndent(resp.Metadata, "", "  ")
		if err == nil {
			fmt.Printf("metadata: %s\n", out)
		}
	}
	for _, w := range resp.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	fmt.Fprintf(os.Stderr, "conversation: %s\n", resp.ConversationID)
}

func personasCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "personas",
		Short: "List available personas",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := persona.Load()
			if err != nil {
				return err
			}
			for _, key := range registry.Keys() {
				p, err := registry.Get(key)
				if err != nil {
					return err
				}
				fmt.Printf("%-12s %s\n", key, p.Description)
			}
			return nil
		},
	}
}

func tracesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "traces <conversation-id>",
		Short: "Show archived reasoning traces for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Traces.Enabled {
				return fmt.Errorf("trace archive is disabled; enable traces in the config")
			}

			db, err := sql.Open("sqlite3", cfg.Traces.DBPath)
			if err != nil {
				return fmt.Errorf("open trace archive: %w", err)
			}
			defer db.Close()

			store := trace.NewStore(db)
			stored, err := store.ByConversation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(stored) == 0 {
				fmt.Println("no traces for this conversation")
				return nil
			}
			for _, s := range stored {
				fmt.Printf("%s  %s  intent=%s  verification=%s\n",
					s.CreatedAt.Format("2006-01-02 15:04:05"), s.MessageID,
					s.Trace.Routing.Intent, s.Trace.Verification)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.LLM.APIKey = "" // never print credentials
			out, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// buildPipeline wires the full request pipeline from configuration. The
// returned cleanup closes the trace archive database when one is open.
func buildPipeline(cfg *config.Config, log zerolog.Logger) (*agent.Pipeline, func(), error) {
	cleanup := func() {}

	personas, err := persona.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load personas: %w", err)
	}

	be := backend.New(backend.Config{
		Endpoint: cfg.Backend.Endpoint,
		Timeout:  cfg.Backend.Timeout,
	})

	facts := conversation.UserFacts{
		DisplayName:    cfg.User.DisplayName,
		Timezone:       cfg.User.Timezone,
		Locale:         cfg.User.Locale,
		Units:          cfg.User.Units,
		Currency:       cfg.User.Currency,
		DefaultCity:    cfg.User.DefaultCity,
		DefaultCountry: cfg.User.DefaultCountry,
	}
	assembler := conversation.NewAssembler(be, facts, cfg.Backend.HistoryWindow, log)

	var available []tools.Tool
	if cfg.Tools.WeatherEndpoint != "" {
		available = append(available, tools.NewWeatherTool(cfg.Tools.WeatherEndpoint))
	}
	if cfg.Tools.CurrencyEndpoint != "" {
		available = append(available, tools.NewCurrencyTool(cfg.Tools.CurrencyEndpoint))
	}
	registry, err := tools.NewRegistry(available...)
	if err != nil {
		return nil, nil, fmt.Errorf("register tools: %w", err)
	}

	provider := llm.NewOpenAIProvider(&llm.ProviderConfig{
		Endpoint: cfg.LLM.Endpoint,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		Timeout:  cfg.LLM.Timeout,
	})
	engine := reason.NewEngine(provider, cfg.LLM.Model, log,
		reason.WithMaxAttempts(cfg.LLM.MaxAttempts),
		reason.WithRetryBackoff(cfg.LLM.RetryBackoff),
		reason.WithTemperature(cfg.LLM.Temperature),
		reason.WithMaxTokens(cfg.LLM.MaxTokens),
	)

	executor := tools.NewExecutor(registry, log,
		tools.WithMaxWorkers(cfg.Agent.ToolConcurrency),
		tools.WithCallTimeout(cfg.Agent.ToolTimeout),
	)

	opts := agent.Options{
		DefaultPersona: cfg.Agent.DefaultPersona,
		DefaultFormat:  cfg.Agent.DefaultFormat,
		SyncTimeout:    cfg.Backend.SyncTimeout,
	}

	if cfg.Traces.Enabled {
		db, err := sql.Open("sqlite3", cfg.Traces.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("open trace archive: %w", err)
		}
		store := trace.NewStore(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("prepare trace archive: %w", err)
		}
		opts.Archive = store
		cleanup = func() { db.Close() }
	}

	pipeline := agent.New(
		personas,
		assembler,
		prompt.NewBuilder(registry),
		engine,
		executor,
		compose.NewComposer(log),
		be,
		opts,
		log,
	)
	return pipeline, cleanup, nil
}
