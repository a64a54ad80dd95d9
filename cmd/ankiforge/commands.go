package main

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/ankiforge/internal/anki"
	"github.com/TobiSchelling/ankiforge/internal/batch"
	"github.com/TobiSchelling/ankiforge/internal/cardgen"
	"github.com/TobiSchelling/ankiforge/internal/database"
	"github.com/TobiSchelling/ankiforge/internal/metrics"
	"github.com/TobiSchelling/ankiforge/internal/model"
	"github.com/TobiSchelling/ankiforge/internal/pipeline"
)

// --- generate / run commands ---

var (
	targetTotal  int
	strategies   []string
	deckName     string
	workers      int
	useRecommend bool
	pushMode     string
	pushRunID    int64
	feeds        []string
)

var generateCmd = &cobra.Command{
	Use:   "generate [files, directories or URLs...]",
	Short: "Generate card drafts from converted documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generate(cmd, args, false)
	},
}

var runCmd = &cobra.Command{
	Use:   "run [files, directories or URLs...]",
	Short: "Generate card drafts and push them to Anki",
	RunE: func(cmd *cobra.Command, args []string) error {
		return generate(cmd, args, true)
	},
}

func init() {
	for _, c := range []*cobra.Command{generateCmd, runCmd} {
		c.Flags().IntVarP(&targetTotal, "target", "n", 0, "Total number of cards (default from config)")
		c.Flags().StringSliceVarP(&strategies, "strategy", "s", nil, "Strategy mix entries as name=ratio, e.g. basic=60,cloze=40")
		c.Flags().StringVarP(&deckName, "deck", "d", "", "Target deck (default from config)")
		c.Flags().IntVarP(&workers, "workers", "w", -1, "Starting worker count, 0 for one per document")
		c.Flags().BoolVar(&useRecommend, "recommend", false, "Use the strategy mix recommended for the first document")
		c.Flags().StringSliceVarP(&feeds, "feed", "f", nil, "RSS/Atom feed whose entries become documents (repeatable)")
	}
	runCmd.Flags().StringVarP(&pushMode, "mode", "m", "", "Update mode: create_only, update_only or create_or_update")

	pushCmd.Flags().Int64VarP(&pushRunID, "run", "r", 0, "Run to push (default: latest)")
	pushCmd.Flags().StringVarP(&pushMode, "mode", "m", "", "Update mode: create_only, update_only or create_or_update")
}

func generate(cmd *cobra.Command, paths []string, push bool) error {
	if deckName != "" {
		cfg.Generation.Deck = deckName
	}

	if len(paths) == 0 && len(feeds) == 0 {
		return fmt.Errorf("give at least one file, directory, URL or --feed")
	}
	docs, err := pipeline.LoadInputs(cmd.Context(), paths, feeds, pipeline.NewSource(cfg.Web))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no supported documents found")
	}

	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	mode, err := resolveMode()
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(cfg, db, metrics.New(nil), progressCallbacks(len(docs)))
	if err != nil {
		return err
	}

	if workers >= 0 {
		pipe.SetWorkers(workers)
	}

	gc := pipe.GenerationConfig()
	if targetTotal > 0 {
		gc.TargetTotal = targetTotal
	}
	if len(strategies) > 0 {
		mix, err := parseStrategies(strategies)
		if err != nil {
			return err
		}
		gc.StrategyMix = mix
	} else if useRecommend || len(gc.StrategyMix) == 0 {
		rec := cardgen.Recommend(docs[0].Content)
		fmt.Printf("Detected %s (confidence %.1f): %s\n", rec.DocumentType, rec.Confidence, rec.Reasoning)
		gc.StrategyMix = rec.StrategyMix
	}

	stop := cancelOnInterrupt(pipe)
	defer stop()

	fmt.Printf("Generating %d cards from %d document(s)...\n", gc.TargetTotal, len(docs))
	var result *pipeline.Result
	if push {
		result = pipe.Run(cmd.Context(), docs, gc, mode)
	} else {
		result = pipe.Generate(cmd.Context(), docs, gc)
	}

	printSteps(result)
	if err := result.Err(); err != nil {
		return err
	}
	if !push {
		fmt.Printf("\nReview with 'ankiforge serve', then push with 'ankiforge push --run %d'.\n", result.RunID)
	}
	return nil
}

// cancelOnInterrupt cancels the pipeline's batch on the first SIGINT so
// in-flight documents can finish and their drafts are kept.
func cancelOnInterrupt(pipe *pipeline.Pipeline) func() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sig:
			fmt.Fprintln(os.Stderr, "\nCancelling: waiting for in-flight requests to finish...")
			pipe.Cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sig)
		close(done)
	}
}

func progressCallbacks(total int) batch.Callbacks {
	return batch.Callbacks{
		OnDocument: func(d batch.DocumentResult) {
			if d.Err != nil {
				fmt.Printf("  [%d/%d] %s: failed: %v\n", d.Index+1, total, d.FileName, d.Err)
				return
			}
			fmt.Printf("  [%d/%d] %s: %d cards\n", d.Index+1, total, d.FileName, d.Cards)
		},
		OnMessage: func(msg string) {
			fmt.Println("  " + msg)
		},
	}
}

func printSteps(result *pipeline.Result) {
	for i, step := range result.Steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(result.Steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
	if result.Push != nil {
		for _, r := range result.Push.Results {
			if !r.Success {
				fmt.Printf("  card #%d: %s\n", r.Index, r.Error)
			}
		}
	}
}

// parseStrategies parses name=ratio entries; a bare name gets ratio 1.
func parseStrategies(entries []string) ([]model.StrategyRatio, error) {
	var mix []model.StrategyRatio
	for _, e := range entries {
		name, ratioText, found := strings.Cut(e, "=")
		name = strings.TrimSpace(name)
		if !cardgen.Known(name) {
			return nil, fmt.Errorf("unknown strategy %q (known: %s)", name, strings.Join(cardgen.StrategyNames(), ", "))
		}
		ratio := 1.0
		if found {
			r, err := strconv.ParseFloat(strings.TrimSpace(ratioText), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid ratio in %q: %w", e, err)
			}
			ratio = r
		}
		mix = append(mix, model.StrategyRatio{Strategy: name, Ratio: ratio})
	}
	return mix, nil
}

func resolveMode() (anki.UpdateMode, error) {
	if pushMode != "" {
		return anki.ParseUpdateMode(pushMode)
	}
	return anki.ParseUpdateMode(cfg.Anki.UpdateMode)
}

// --- push command ---

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push a stored run's drafts to Anki",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		mode, err := resolveMode()
		if err != nil {
			return err
		}

		runID := pushRunID
		if runID == 0 {
			latest, err := db.GetLatestRun()
			if err != nil {
				return err
			}
			if latest == nil {
				return fmt.Errorf("no runs yet; generate cards first")
			}
			runID = latest.ID
		}

		pipe, err := pipeline.New(cfg, db, metrics.New(nil), batch.Callbacks{})
		if err != nil {
			return err
		}

		fmt.Printf("Pushing run #%d (%s)...\n", runID, mode)
		result := pipe.Push(cmd.Context(), runID, mode)
		printSteps(result)
		return result.Err()
	},
}

// --- decks command ---

var decksCmd = &cobra.Command{
	Use:   "decks",
	Short: "List Anki decks and note types",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := ankiClient()
		decks, err := client.DeckNames(cmd.Context())
		if err != nil {
			return err
		}
		models, err := client.ModelNames(cmd.Context())
		if err != nil {
			return err
		}
		sort.Strings(decks)
		sort.Strings(models)

		fmt.Println("Decks:")
		for _, d := range decks {
			fmt.Printf("  %s\n", d)
		}
		fmt.Println("\nNote types:")
		for _, m := range models {
			fmt.Printf("  %s\n", m)
		}
		return nil
	},
}

// --- recommend command ---

var recommendCmd = &cobra.Command{
	Use:   "recommend [file or URL]",
	Short: "Suggest a strategy mix for a document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := pipeline.LoadInputs(cmd.Context(), args, nil, pipeline.NewSource(cfg.Web))
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return fmt.Errorf("no supported document at %s", args[0])
		}

		rec := cardgen.Recommend(docs[0].Content)
		fmt.Printf("Document type: %s (confidence %.1f)\n", rec.DocumentType, rec.Confidence)
		fmt.Printf("Reasoning: %s\n\n", rec.Reasoning)
		fmt.Println("Strategy mix:")
		for _, item := range rec.StrategyMix {
			fmt.Printf("  %-12s %3.0f%%\n", item.Strategy, item.Ratio)
		}
		return nil
	},
}

// --- history command ---

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent generation runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.GetRecentRuns(historyLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs yet. Generate cards with: ankiforge generate <files>")
			return nil
		}

		for _, r := range runs {
			fmt.Printf("  #%-4d %-10s %3d docs %4d cards  workers %d  %s\n",
				r.ID, r.State, r.Documents, r.Cards, r.Workers, r.StartedAt)
			if r.FirstError != nil {
				fmt.Printf("        error: %s\n", truncate(*r.FirstError, 80))
			}
			printPushes(db, r.ID)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 10, "Number of runs to show")
}

func printPushes(db *database.DB, runID int64) {
	pushes, err := db.GetPushResults(runID)
	if err != nil {
		return
	}
	for _, p := range pushes {
		fmt.Printf("        pushed %s: %d/%d ok (%s)\n", p.Mode, p.Succeeded, p.Total, p.PushedAt)
	}
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}
