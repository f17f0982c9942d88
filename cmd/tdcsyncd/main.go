package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rsmu-go/internal/daemon"
	"rsmu-go/services/config"
)

func newRootCommand() *cobra.Command {
	var (
		path  string
		level string
	)
	cmd := &cobra.Command{
		Use:           "tdcsyncd",
		Short:         "Monitor an RSMU timing device and discipline a clock from its TDC",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			log, err := daemon.NewLogger(cfg.Log, level, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(log)
			log.Info("starting", slog.String("config", path))
			return daemon.New(cfg, log, daemon.DefaultHooks()).Run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&path, "config", "c", "", "YAML configuration file (built-in defaults when empty)")
	cmd.Flags().StringVar(&level, "log-level", "", "override the configured log level")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tdcsyncd:", err)
		os.Exit(1)
	}
}
