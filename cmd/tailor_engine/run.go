package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/resume-tailor/internal/config"
	"github.com/jonathan/resume-tailor/internal/engine"
	"github.com/jonathan/resume-tailor/internal/fetch"
	"github.com/jonathan/resume-tailor/internal/llm"
	"github.com/jonathan/resume-tailor/internal/observability"
	"github.com/jonathan/resume-tailor/internal/store"
	"github.com/jonathan/resume-tailor/internal/types"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one customization end-to-end",
	Long: `Runs the full customization pipeline for a single resume: evaluate -> plan -> implement -> verify.

Configuration can be loaded from a JSON file using --config. Command-line arguments override config file values.`,
	RunE: runCustomizationCmd,
}

var (
	runConfigPath       string
	runResume           string
	runTarget           string
	runTargetURL        string
	runOutput           string
	runAPIKey           string
	runUseBrowser       bool
	runVerbose          bool
	runDatabaseURL      string
	runRetryBudget      int
	runConcurrency      int
	runPartialThreshold float64
)

func init() {
	// Config file flag (processed first)
	runCommand.Flags().StringVar(&runConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")

	runCommand.Flags().StringVarP(&runResume, "resume", "r", "", "Path to the resume markdown file")
	runCommand.Flags().StringVarP(&runTarget, "target", "t", "", "Path to the target description text file (mutually exclusive with --target-url)")
	runCommand.Flags().StringVar(&runTargetURL, "target-url", "", "URL to fetch the target description from (mutually exclusive with --target)")
	runCommand.Flags().StringVarP(&runOutput, "output", "o", "", "Path to write the customized resume to (default: stdout)")
	runCommand.Flags().BoolVar(&runUseBrowser, "use-browser", false, "Use headless browser for SPA sites (requires Chrome)")
	runCommand.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Print detailed debug information")
	runCommand.Flags().IntVar(&runRetryBudget, "retry-budget", 0, "Validator retries per stage beyond the first attempt (0 uses the default, -1 disables)")
	runCommand.Flags().IntVar(&runConcurrency, "concurrency", 0, "Concurrent section rewrites")
	runCommand.Flags().Float64Var(&runPartialThreshold, "partial-threshold", 0, "Minimum fraction of section rewrites that must succeed")

	// API key can be passed as a flag, or read from env var GEMINI_API_KEY
	runCommand.Flags().StringVar(&runAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")

	// Database URL for job persistence; an in-memory store is used when unset
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(runCommand)
}

func runCustomizationCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	// Step 1: Load config file if provided
	var fileCfg config.Config
	if runConfigPath != "" {
		loadedCfg, err := config.LoadConfig(runConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if err := loadedCfg.Validate(); err != nil {
			return err
		}

		fileCfg = *loadedCfg
		if runVerbose {
			_, _ = fmt.Fprintf(os.Stdout, "Loaded config from: %s\n", runConfigPath)
		}
	}

	// Step 2: Merge CLI values over the file config. Flags use the
	// zero-value-means-unset convention, so anything set on the command
	// line wins and the rest falls back to the file.
	flagCfg := config.Config{
		Resume:           runResume,
		Target:           runTarget,
		TargetURL:        runTargetURL,
		APIKey:           runAPIKey,
		DatabaseURL:      runDatabaseURL,
		RetryBudget:      runRetryBudget,
		Concurrency:      runConcurrency,
		PartialThreshold: runPartialThreshold,
	}
	cfg := flagCfg.MergeWithDefaults(fileCfg)

	// Bools cannot tell unset from false; the flag wins only when set.
	cfg.UseBrowser = fileCfg.UseBrowser
	if cmd.Flags().Changed("use-browser") {
		cfg.UseBrowser = runUseBrowser
	}
	cfg.Verbose = fileCfg.Verbose
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = runVerbose
	}

	// Step 3: Validate required fields
	if cfg.Resume == "" {
		return fmt.Errorf("--resume must be provided (via flag or config)")
	}
	if cfg.Target == "" && cfg.TargetURL == "" {
		return fmt.Errorf("either --target or --target-url must be provided (via flag or config)")
	}
	if cfg.Target != "" && cfg.TargetURL != "" {
		return fmt.Errorf("--target and --target-url are mutually exclusive; provide only one")
	}

	// Step 4: API key handling
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	// Step 5: Read inputs
	resume, err := os.ReadFile(cfg.Resume)
	if err != nil {
		return fmt.Errorf("failed to read resume: %w", err)
	}

	target := ""
	if cfg.Target != "" {
		data, err := os.ReadFile(cfg.Target)
		if err != nil {
			return fmt.Errorf("failed to read target description: %w", err)
		}
		target = string(data)
	} else {
		target, err = fetch.TargetDescription(ctx, cfg.TargetURL, cfg.UseBrowser, cfg.Verbose)
		if err != nil {
			return fmt.Errorf("failed to fetch target description: %w", err)
		}
	}

	// Step 6: Build and run the engine
	eng, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := eng.Run(ctx, engine.Request{
		OriginalDocument:  string(resume),
		TargetDescription: target,
	})
	if err != nil {
		return err
	}

	if cfg.Verbose {
		printer := observability.NewPrinter(os.Stdout)
		printer.PrintEvaluation(result.Evaluation)
		printer.PrintPlan(result.Plan)
		printer.PrintImplementation(result.Implementation)
		printer.PrintVerification(result.Verification)
		printer.PrintDiff(result.Diff)
	}

	document := result.Implementation.Document()
	if runOutput != "" {
		if err := os.WriteFile(runOutput, []byte(document), 0o644); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Customized resume written to %s\n", runOutput)
		return nil
	}
	fmt.Fprintln(os.Stdout, document)
	return nil
}

// buildEngine assembles the model client, job store and engine from merged
// configuration. The returned cleanup releases both.
func buildEngine(ctx context.Context, cfg config.Config) (*engine.Engine, func(), error) {
	model, err := llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create model client: %w", err)
	}

	var jobStore store.JobStore
	closeStore := func() {}
	if cfg.DatabaseURL != "" {
		pg, err := store.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = model.Close()
			return nil, nil, err
		}
		jobStore = pg
		closeStore = pg.Close
	} else {
		jobStore = store.NewMemoryStore()
	}

	eng := engine.New(model, jobStore, nil, engine.Config{
		RetryBudget:      cfg.RetryBudget,
		PartialThreshold: cfg.PartialThreshold,
		Concurrency:      cfg.Concurrency,
		StageWeights:     stageWeights(cfg.StageWeights),
	})

	cleanup := func() {
		closeStore()
		_ = model.Close()
	}
	return eng, cleanup, nil
}

// stageWeights converts the config's string-keyed weight table.
func stageWeights(weights map[string]float64) map[types.Stage]float64 {
	if len(weights) == 0 {
		return nil
	}
	converted := make(map[types.Stage]float64, len(weights))
	for stage, w := range weights {
		converted[types.Stage(stage)] = w
	}
	return converted
}
