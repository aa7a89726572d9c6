// ./main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/deskpilot/cmd"
)

// main is the entry point for the deskpilot application. It installs the
// signal context so Ctrl+C cancels running tasks gracefully, then hands off
// to the command tree.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			// Graceful cancellation is a clean exit.
			os.Exit(0)
		}
		os.Exit(1)
	}
}
