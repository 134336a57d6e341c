package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/seayun/hdbmap/internal/config"
	"github.com/seayun/hdbmap/internal/dataset"
	"github.com/seayun/hdbmap/internal/geocode"
	"github.com/seayun/hdbmap/internal/logging"
	"github.com/seayun/hdbmap/internal/period"
	"github.com/seayun/hdbmap/internal/pipeline"
	"github.com/seayun/hdbmap/internal/retry"
	"github.com/seayun/hdbmap/internal/server"
	"github.com/seayun/hdbmap/internal/store"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
	logger     *zap.Logger
)

func main() {
	// Optional; the token can also come from the real environment.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	if logger != nil {
		_ = logger.Sync()
	}
}

var rootCmd = &cobra.Command{
	Use:     "hdbmap",
	Short:   "Singapore public-housing data pipeline and map API",
	Long:    "hdbmap fetches HDB resale, property and price datasets, enriches them with coordinates, and serves them to the map client.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
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

		level := cfg.Logging.Level
		if verbose {
			level = "debug"
		}
		logger, err = logging.New(level)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(initSegmentsCmd)
	rootCmd.AddCommand(serveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("hdbmap", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/hdbmap/",
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
		fmt.Println("Edit it to set the data directory and geocoder token variable.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store contents and last update times",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}

		fmt.Printf("Data directory: %s\n\n", cfg.GetDataDir())

		fmt.Println("Price segments:")
		for _, seg := range store.Segments {
			state := "missing"
			if st.SegmentExists(seg) {
				state = "present"
			}
			fmt.Printf("  %-13s %s\n", seg.Name, state)
		}

		fmt.Println("\nLast updates:")
		for _, family := range []string{"properties", "prices_latest", "agg_prices_latest"} {
			meta, err := st.ReadMetadata(family)
			if err != nil {
				return err
			}
			if meta == nil {
				fmt.Printf("  %-18s never\n", family)
				continue
			}
			fmt.Printf("  %-18s %s (%d records, period %s)\n",
				family, meta.LastUpdated, meta.RecordCount, meta.LastPeriod)
		}
		return nil
	},
}

// --- update command ---

var (
	updateYear  int
	updateMonth int
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Fetch and merge one month of data (default: previous month)",
	RunE: func(cmd *cobra.Command, args []string) error {
		month, err := targetMonth()
		if err != nil {
			return err
		}

		pipe, cleanup, err := newPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signalContext()
		defer stop()
		result := pipe.Run(ctx, month)

		fmt.Printf("Update for %s:\n", result.Period)
		for _, step := range result.Steps {
			if step.Err != nil {
				fmt.Printf("  %-12s error: %v\n", step.Name, step.Err)
			} else {
				fmt.Printf("  %-12s %s\n", step.Name, step.Summary)
			}
		}

		if !result.OK() {
			return fmt.Errorf("update finished with errors; re-run 'hdbmap update' to retry")
		}
		return nil
	},
}

func init() {
	updateCmd.Flags().IntVar(&updateYear, "year", 0, "Target year (default: previous month's year)")
	updateCmd.Flags().IntVar(&updateMonth, "month", 0, "Target month 1-12 (default: previous month)")
}

// targetMonth resolves --year/--month, defaulting to the previous calendar
// month. Setting only one of the two is an error.
func targetMonth() (period.Period, error) {
	if updateYear == 0 && updateMonth == 0 {
		return period.Previous(time.Now()), nil
	}
	if updateYear == 0 || updateMonth == 0 {
		return period.Period{}, fmt.Errorf("--year and --month must be set together")
	}
	return period.NewMonth(updateYear, updateMonth)
}

// --- backfill command ---

var (
	backfillFrom string
	backfillTo   string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run the monthly update for a range of months",
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseMonthFlag("from", backfillFrom)
		if err != nil {
			return err
		}
		to := period.Previous(time.Now())
		if backfillTo != "" {
			if to, err = parseMonthFlag("to", backfillTo); err != nil {
				return err
			}
		}

		pipe, cleanup, err := newPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Backfilling %s through %s...\n", from.MonthLabel(), to.MonthLabel())
		if err := pipe.Backfill(ctx, from, to); err != nil {
			return err
		}
		fmt.Println("Backfill complete.")
		return nil
	},
}

func init() {
	backfillCmd.Flags().StringVar(&backfillFrom, "from", "", "First month, YYYY-MM (required)")
	backfillCmd.Flags().StringVar(&backfillTo, "to", "", "Last month, YYYY-MM (default: previous month)")
	_ = backfillCmd.MarkFlagRequired("from")
}

func parseMonthFlag(name, value string) (period.Period, error) {
	t, err := period.ParseStart(value)
	if err != nil {
		return period.Period{}, fmt.Errorf("--%s: %w", name, err)
	}
	return period.NewMonth(t.Year(), int(t.Month()))
}

// --- init-segments command ---

var initSegmentsCmd = &cobra.Command{
	Use:   "init-segments",
	Short: "Materialize missing historical price segments",
	RunE: func(cmd *cobra.Command, args []string) error {
		pipe, cleanup, err := newPipeline()
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signalContext()
		defer stop()

		fmt.Println("Initializing historical price segments (full exports, may take a while)...")
		if err := pipe.InitSegments(ctx); err != nil {
			return err
		}
		fmt.Println("Segments ready.")
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the map API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}

		port := cfg.Server.Port
		if servePort != 0 {
			port = servePort
		}

		ctx, stop := signalContext()
		defer stop()

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return server.New(st, cfg.Server.ClientDir, logger).Run(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config)")
}

// --- wiring ---

func openStore() (*store.Store, error) {
	return store.New(cfg.GetDataDir(), logger)
}

func newPipeline() (*pipeline.Pipeline, func(), error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}

	cache, err := geocode.OpenCache(filepath.Join(cfg.GetDataDir(), "geocode.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening geocode cache: %w", err)
	}

	geo := geocode.NewClient(
		cfg.Geocode.BaseURL,
		os.Getenv(cfg.Geocode.TokenEnv),
		retry.Policy{MaxAttempts: cfg.Geocode.MaxAttempts, Delay: time.Duration(cfg.Geocode.ThrottleMs) * time.Millisecond},
		time.Duration(cfg.Geocode.ThrottleMs)*time.Millisecond,
		cache,
		logger,
	)

	src := dataset.NewClient(
		cfg.Source.BaseURL,
		retry.Policy{MaxAttempts: cfg.Source.MaxPolls, Delay: time.Duration(cfg.Source.PollIntervalSeconds) * time.Second},
		logger,
	)

	pipe := pipeline.New(cfg, st, src, geo, logger)
	cleanup := func() { _ = cache.Close() }
	return pipe, cleanup, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
