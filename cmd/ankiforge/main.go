package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/ankiforge/internal/anki"
	"github.com/TobiSchelling/ankiforge/internal/config"
	"github.com/TobiSchelling/ankiforge/internal/database"
	"github.com/TobiSchelling/ankiforge/internal/llm"
	"github.com/TobiSchelling/ankiforge/internal/metrics"
	"github.com/TobiSchelling/ankiforge/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "ankiforge",
	Short:   "Generate Anki flashcards from documents with an LLM",
	Long:    "ankiforge turns converted documents into Anki card drafts with an LLM and pushes them through AnkiConnect.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging("INFO")

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		setupLogging(cfg.Logging.Level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(decksCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(serveCmd)
}

// setupLogging installs the default slog handler; --verbose forces debug.
func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN", "WARNING":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if verbose {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ankiforge", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/ankiforge/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to configure the LLM provider, API key variable, and default deck.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database, LLM and AnkiConnect status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Println("History:")
		fmt.Printf("  Runs: %d (%d completed)\n", stats.Runs, stats.CompletedRuns)
		fmt.Printf("  Drafts: %d\n", stats.Drafts)
		fmt.Printf("  Pushes: %d (%d cards pushed, %d failed)\n", stats.Pushes, stats.PushedCards, stats.FailedCards)

		if latest, err := db.GetLatestRun(); err == nil && latest != nil {
			fmt.Printf("  Latest run: #%d %s, %d cards (%s)\n", latest.ID, latest.State, latest.Cards, latest.StartedAt)
		}

		workers := "one per document"
		if n, ok, err := db.GetConfiguredWorkers(); err == nil && ok && n > 0 {
			workers = fmt.Sprintf("%d", n)
		} else if cfg.Generation.Workers > 0 {
			workers = fmt.Sprintf("%d", cfg.Generation.Workers)
		}

		fmt.Println("\nGeneration:")
		fmt.Printf("  Provider: %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Printf("  Target: %d cards, deck %q\n", cfg.Generation.TargetTotal, cfg.Generation.Deck)
		fmt.Printf("  Workers: %s (adaptive: %v, max %d)\n", workers, cfg.Generation.Adaptive, cfg.Generation.MaxWorkers)

		if provider, err := llm.CreateProvider(cfg.LLM); err != nil {
			fmt.Printf("  LLM: not configured (%v)\n", err)
		} else if ollama, ok := provider.(*llm.OllamaProvider); ok && !ollama.IsConfigured(cmd.Context()) {
			fmt.Printf("  LLM: Ollama not reachable or model %q missing\n", cfg.LLM.Model)
		}

		client := ankiClient()
		fmt.Println("\nAnkiConnect:")
		if v, err := client.Version(cmd.Context()); err != nil {
			fmt.Printf("  %s: unavailable\n", client.URL)
		} else {
			fmt.Printf("  %s: connected (API version %d)\n", client.URL, v)
		}
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.Serve(db, metrics.New(nil), port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to run server on (default from config)")
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "ankiforge.db")
	return database.Open(dbPath)
}

func ankiClient() *anki.Client {
	return anki.NewClient(cfg.Anki.URL, cfg.Anki.Key(), cfg.Anki.Timeout())
}
