package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && interrupted:
		// Ctrl-C during convert or logs -f.
		os.Exit(130)
	default:
		fmt.Fprintln(os.Stderr, "vconv:", err)
		os.Exit(1)
	}
}
