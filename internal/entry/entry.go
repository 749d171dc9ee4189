// Package entry provides the common scaffolding shared by our server
// processes: a structured logger, signal-driven shutdown, and an HTTP server
// loop that tags each request with its own logger.
package entry

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// Application carries the top-level state for a running server process
type Application struct {
	name   string
	logger *slog.Logger
	cancel context.CancelFunc
}

// NewApplication initializes a logger for the named app, along with a context
// that will be canceled when the process receives SIGINT or SIGTERM
func NewApplication(name string) (*Application, context.Context) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("app", name)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return &Application{
		name:   name,
		logger: logger,
		cancel: cancel,
	}, ctx
}

// Log returns the top-level logger for the application
func (a *Application) Log() *slog.Logger {
	return a.logger
}

// Fail logs a fatal startup error and aborts the process
func (a *Application) Fail(message string, err error) {
	a.logger.Error(message, "error", err)
	os.Exit(1)
}

// Stop releases the application's signal handler
func (a *Application) Stop() {
	a.cancel()
}
