// ABOUTME: Entry point for audiosock
// ABOUTME: Runs the cobra command tree until it finishes or the process is interrupted
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/audiosock/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "audiosock:", err)
		stop()
		os.Exit(1)
	}
}
