package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"ozzus/check-dispatcher/internal/config"
	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/lib/logger/slogpretty"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

var (
	cfg *config.Config
	log *slog.Logger

	flagConfigPath string
	flagArgs       string
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file to load - default is ./config/local.yaml")
	rootCmd.PersistentFlags().StringVar(&flagArgs, "args", "", "module argument string applied over the config, e.g. \"server=kafka-1 hosts=yes\" (env DISPATCH_ARGS)")

	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initDispatcher

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(emitCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		slog.Error("dispatcher failed", "error", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "dispatcher",
	Short:        "Routes monitoring checks to remote workers through a job broker",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("dispatcher: version info not available")
			return
		}

		fmt.Printf("dispatcher: %s\n", info.Main.Version)
		fmt.Printf("go:         %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:     %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:       %s\n", s.Value)
			}
		}
		for _, d := range brokerDrivers {
			if v, ok := dispatch.ModuleVersion(d.Module); ok {
				fmt.Printf("%-11s %s\n", d.Name+":", v)
			}
		}
	},
}

func initDispatcher(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(flagConfigPath)
	if err != nil {
		return err
	}

	args := flagArgs
	if args == "" {
		args = os.Getenv("DISPATCH_ARGS")
	}
	if args == "" {
		args = cfg.Args
	}
	warnings := cfg.ParseArgs(args)

	log = setupLogger(cfg.Env, cfg.Debug)
	slog.SetDefault(log)

	for _, w := range warnings {
		log.Warn("ignoring module argument", slog.String("reason", w))
	}
	return nil
}

func setupLogger(env string, debugLevel int) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog(levelFor(slog.LevelDebug, debugLevel))
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: levelFor(slog.LevelDebug, debugLevel)}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: levelFor(slog.LevelInfo, debugLevel)}),
		)
	default:
		log = setupPrettySlog(levelFor(slog.LevelDebug, debugLevel))
	}

	return log
}

// levelFor lowers base by the debug setting: 1 is debug, 2 and up is trace.
func levelFor(base slog.Level, debugLevel int) slog.Level {
	switch {
	case debugLevel >= 2:
		return slogpretty.LevelTrace
	case debugLevel == 1:
		return min(base, slog.LevelDebug)
	}
	return base
}

func setupPrettySlog(level slog.Level) *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: level,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
