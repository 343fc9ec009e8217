// Command sitebuilder generates business websites with a pipeline of generation agents and
// deploys them to WordPress hosts over SSH and the WordPress REST API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		exitCode = 1
	}

	stop()
	os.Exit(exitCode)
}
