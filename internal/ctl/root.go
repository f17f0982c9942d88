// Package ctl implements rsmuctl, the command-line control surface for a
// synchronizer on a Linux I2C adapter.
package ctl

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"rsmu-go/drivers/rsmu"
	"rsmu-go/drivers/rsmu/i2cdev"
	"rsmu-go/errcode"
	"rsmu-go/firmware"
	"rsmu-go/services/config"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // device or bus failure
	ExitCommandError = 2 // bad command line
)

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errcode.Of(err) == errcode.InvalidArgument:
		return ExitCommandError
	default:
		return ExitFailure
	}
}

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Bus          int
	Addr         uint16
	Family       string
	Revision     string
	Transport    string
	Force        bool
	FirmwareDir  string
	RecalOnError bool
	Verbose      bool
}

func (o *RootOptions) logger(w io.Writer) *slog.Logger {
	lvl := slog.LevelWarn
	if o.Verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// opener opens the device named by the options.
type opener func(o *RootOptions, log *slog.Logger) (Device, io.Closer, error)

func openDevice(o *RootOptions, log *slog.Logger) (Device, io.Closer, error) {
	fam, err := rsmu.ParseFamily(o.Family)
	if err != nil {
		return nil, nil, err
	}
	rev, detect, err := config.Device{Revision: o.Revision}.ParseRevision()
	if err != nil {
		return nil, nil, err
	}
	conn, err := i2cdev.Open(i2cdev.Options{Bus: o.Bus, Addr: o.Addr, Force: o.Force, Transport: o.Transport})
	if err != nil {
		return nil, nil, err
	}
	cfg := rsmu.DefaultConfig()
	cfg.Family, cfg.Revision = fam, rev
	cfg.DetectRevision = detect && fam == rsmu.FemtoClock3
	cfg.RecalOnAbort = o.RecalOnError
	cfg.Logger = log
	dev, err := rsmu.Open(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	log.Debug("device open", slog.String("family", fam.String()), slog.String("revision", dev.Revision().String()),
		slog.String("transport", dev.Transport().String()))
	return dev, conn, nil
}

// NewRootCommand creates the rsmuctl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(openDevice)
}

func newRootCommand(open opener) *cobra.Command {
	opts := &RootOptions{}

	var help strings.Builder
	help.WriteString("Read and control a Renesas synchronizer over I2C.\n\n")
	help.WriteString("Commands run in order and stop at the first failure:\n\n")
	Usage(&help)

	cmd := &cobra.Command{
		Use:           "rsmuctl [flags] [command [args]]...",
		Short:         "rsmuctl - synchronizer control",
		Long:          help.String(),
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       "  rsmuctl --bus 1 --addr 0x5b get_state 0 rd 0x580 4 wait 1 get_state 0",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, opts, open, func(r *Runner) error {
				return r.Run(cmd.Context(), args)
			})
		},
	}

	f := cmd.PersistentFlags()
	f.IntVarP(&opts.Bus, "bus", "b", 0, "i2c adapter number (/dev/i2c-N)")
	f.Uint16VarP(&opts.Addr, "addr", "a", 0x5b, "7-bit device address")
	f.StringVarP(&opts.Family, "family", "f", "fc3", "device family or part number")
	f.StringVar(&opts.Revision, "revision", "auto", "revision (auto|default|fc3w|fc3a)")
	f.StringVar(&opts.Transport, "transport", "auto", "bus transport (auto|i2c|smbus)")
	f.BoolVar(&opts.Force, "force", false, "claim the address even if a kernel driver holds it")
	f.StringVar(&opts.FirmwareDir, "fw-dir", "/lib/firmware", "firmware search directory")
	f.BoolVar(&opts.RecalOnError, "recal-on-error", true, "recalibrate after a failed firmware load")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewShellCommand(opts, open))
	cmd.AddCommand(NewTraceCommand())

	return cmd
}

func withRunner(cmd *cobra.Command, opts *RootOptions, open opener, fn func(*Runner) error) error {
	dev, closer, err := open(opts, opts.logger(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cmd.SetContext(ctx)
	return fn(&Runner{
		Dev:      dev,
		Firmware: firmware.NewDir(opts.FirmwareDir),
		Out:      cmd.OutOrStdout(),
	})
}
