package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskagent/internal/config"
	"taskagent/internal/dispatch"
	"taskagent/internal/handlers"
	"taskagent/internal/logging"
	"taskagent/internal/oracle"
	"taskagent/internal/perception"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	configPath string
	dataRoot   string
	verbose    bool
	timeout    time.Duration

	logger *zap.Logger
	cfg    *config.Config
)

// errUsage marks failures caused by the caller's input (exit status 2).
var errUsage = errors.New("usage error")

var rootCmd = &cobra.Command{
	Use:   "taskagent",
	Short: "Run plain-English automation tasks against a data directory",
	Long: `taskagent classifies a task description into one of a fixed set of
automations, extracts its parameters, and runs the matching handler.

All files read or written live under the data root (default /data).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if dataRoot != "" {
			cfg.DataRoot = dataRoot
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = buildLogger(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logging.Initialize(logger, cfg.Logging.Categories)
		logging.Get(logging.CategoryBoot).Debug("configuration loaded",
			zap.String("data_root", cfg.DataRoot),
			zap.String("sql_driver", cfg.SQL.Driver),
			zap.Bool("oracle", cfg.HasOracleKey()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func buildLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Logging.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	if lvl, err := zapcore.ParseLevel(cfg.Logging.Level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return zc.Build()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data-root", "", "Override the data root")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall time budget for a task")

	readCmd.Flags().BoolVar(&renderMarkdown, "render", false, "Render Markdown files for the terminal")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 250*time.Millisecond, "How long a task file must stay unchanged before it runs")

	rootCmd.AddCommand(runCmd, classifyCmd, intentsCmd, readCmd, watchCmd)
}

// newDispatcher wires the oracle, handlers and registry for cfg. The
// returned set must be closed.
func newDispatcher(ctx context.Context, cfg *config.Config) (*dispatch.Dispatcher, *handlers.Set, error) {
	o, err := oracle.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	reg, set, err := handlers.NewRegistry(cfg, handlers.Deps{Oracle: o})
	if err != nil {
		return nil, nil, err
	}
	ext, err := perception.NewExtractor(cfg.DataRoot)
	if err != nil {
		set.Close()
		return nil, nil, err
	}
	return dispatch.New(nil, ext, reg), set, nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), dispatch.IsUserError(err):
		return 2
	default:
		return 1
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
