package ctl

import (
	"context"
	"fmt"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"rsmu-go/errcode"
)

// NewShellCommand opens the device once and reads commands interactively.
func NewShellCommand(opts *RootOptions, open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive command shell",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd, opts, open, func(r *Runner) error {
				return runShell(cmd.Context(), r)
			})
		},
	}
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands)+2)
	for _, c := range commands {
		items = append(items, readline.PcItem(c.name))
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

func runShell(ctx context.Context, r *Runner) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "rsmu> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()
	r.Out = rl.Stdout()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			return nil
		}
		quit, err := r.Exec(ctx, line)
		if err != nil {
			fmt.Fprintln(rl.Stderr(), "error:", err)
		}
		if quit {
			return nil
		}
	}
}

// Exec runs one shell line. Quoting and # comments follow shell rules.
func (r *Runner) Exec(ctx context.Context, line string) (quit bool, err error) {
	argv, err := shlex.Split(line)
	if err != nil {
		return false, errcode.Invalid("shell", err.Error())
	}
	if len(argv) == 0 {
		return false, nil
	}
	switch argv[0] {
	case "exit", "quit":
		return true, nil
	case "help", "?":
		Usage(r.Out)
		return false, nil
	}
	return false, r.Run(ctx, argv)
}
