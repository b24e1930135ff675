package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftmirror/internal/config"
	"github.com/openmined/syftmirror/internal/mirror"
	"github.com/openmined/syftmirror/internal/utils"
	"github.com/openmined/syftmirror/internal/version"
	"github.com/openmined/syftmirror/internal/workspace"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
	logLevel       = new(slog.LevelVar)
)

var rootCmd = &cobra.Command{
	Use:     "syftmirror",
	Short:   "Keep a replica directory in sync with a source directory",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// create & validate config
		cfg := &config.Config{
			Path:            viper.ConfigFileUsed(),
			Source:          viper.GetString("source"),
			Replica:         viper.GetString("replica"),
			IntervalSeconds: viper.GetInt("interval"),
			LogPath:         viper.GetString("log"),
			Workers:         viper.GetInt("workers"),
			Excludes:        viper.GetStringSlice("exclude"),
			Once:            viper.GetBool("once"),
			Verbose:         viper.GetBool("verbose"),
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// all good now
		cmd.SilenceUsage = true
		if cfg.Verbose {
			logLevel.Set(slog.LevelDebug)
		}

		closeDiagnostics, err := setupDiagnostics(viper.GetString("diagnostics"))
		if err != nil {
			return err
		}
		defer closeDiagnostics()

		slog.Info("syftmirror", version.LogAttrs()...)
		defer slog.Info("Bye!")
		return run(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("source", "i", "", "Source directory to watch")
	rootCmd.Flags().StringP("replica", "o", "", "Replica directory kept in sync with the source")
	rootCmd.Flags().IntP("interval", "t", 0, "Seconds between full resync passes")
	rootCmd.Flags().StringP("log", "l", "", "Existing file that receives the change audit log")
	rootCmd.Flags().Int("workers", 0, "Concurrent file copies during a resync (0 = default)")
	rootCmd.Flags().StringSlice("exclude", nil, "Glob of source paths left out of change classification (repeatable)")
	rootCmd.Flags().Bool("once", false, "Mirror the source a single time and exit")
	rootCmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.Flags().String("diagnostics", "", "Also write diagnostic logs to this file")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (json, yaml or toml)")
}

func main() {
	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})
	slog.SetDefault(slog.New(stderrHandler))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	ws, err := workspace.NewWorkspace(cfg.Source, cfg.Replica, cfg.LogPath)
	if err != nil {
		return err
	}

	if err := ws.Lock(); err != nil {
		return err
	}
	defer func() {
		if err := ws.Unlock(); err != nil {
			slog.Warn("failed to release replica lock", "error", err)
		}
	}()

	session, err := mirror.NewSession(ws, cfg.Interval(),
		mirror.WithWorkers(cfg.Workers),
		mirror.WithExcludes(cfg.Excludes...),
	)
	if err != nil {
		return err
	}

	if cfg.Once {
		return session.RunOnce(ctx)
	}

	if err := session.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("mirror session failure", "error", err)
		return err
	}
	return nil
}

// setupDiagnostics fans slog output out to a text file next to the console
func setupDiagnostics(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}

	if err := utils.EnsureParent(path); err != nil {
		return nil, fmt.Errorf("create diagnostics directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open diagnostics file: %w", err)
	}

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{Level: logLevel})
	previous := slog.Default()
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(previous.Handler(), fileHandler)))

	return func() {
		slog.SetDefault(previous)
		file.Close()
	}, nil
}

func loadConfig(cmd *cobra.Command) error {
	// config path
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".syftmirror"))
		viper.AddConfigPath(filepath.Join(home, ".config", "syftmirror"))
		viper.SetConfigName(configFileName)
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	for _, name := range []string{"source", "replica", "interval", "log", "workers", "exclude", "once", "verbose", "diagnostics"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	// Set up environment variables
	viper.SetEnvPrefix("SYFTMIRROR")
	viper.AutomaticEnv()

	return nil
}
