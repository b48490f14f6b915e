// Package main is the entry point for the chat server.
package main

import (
	"context"
	"fmt"
	"os"

	"chatapp/bootstrap"
)

// run initializes the server, serves until a shutdown signal and then
// stops every component.
func run() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	serveErr := app.WaitForShutdown()
	app.Shutdown()

	if serveErr != nil {
		return fmt.Errorf("server stopped unexpectedly: %w", serveErr)
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
