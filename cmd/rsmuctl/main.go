package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rsmu-go/internal/ctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := ctl.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "rsmuctl:", err)
		os.Exit(ctl.ExitCode(err))
	}
}
