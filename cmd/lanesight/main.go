package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/lanesight/internal/logging"
)

func main() {
	logging.ConfigureRuntime()
	if err := execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "lanesight: %v\n", err)
		os.Exit(1)
	}
}

// execute runs the root command under a context cancelled by SIGINT or
// SIGTERM, so the service drains and detaches before exit.
func execute(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.ExecuteContext(ctx)
}
