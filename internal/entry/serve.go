package entry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey struct{}

var loggerKey contextKey

// Log returns the request-scoped logger installed by RunServer's middleware,
// falling back to the default logger if the request was not routed through it
func Log(req *http.Request) *slog.Logger {
	if logger, ok := req.Context().Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// RunServer serves the given handler until ctx is canceled, then shuts down
// gracefully. Every request is annotated with a unique request ID and logged
// on completion.
func RunServer(ctx context.Context, logger *slog.Logger, handler http.Handler, bindAddr string, port uint16) {
	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", bindAddr, port),
		Handler: withRequestLogging(logger, handler),
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("Listening for HTTP connections", "addr", server.Addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to shut down HTTP server cleanly", "error", err)
			return
		}
		logger.Info("HTTP server stopped")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func withRequestLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		requestLogger := logger.With(
			"requestId", uuid.NewString(),
			"method", req.Method,
			"path", req.URL.Path,
		)
		recorder := &statusRecorder{ResponseWriter: res, status: http.StatusOK}

		started := time.Now()
		next.ServeHTTP(recorder, req.WithContext(
			context.WithValue(req.Context(), loggerKey, requestLogger),
		))

		requestLogger.Info("Handled request",
			"status", recorder.status,
			"elapsed", time.Since(started).String(),
		)
	})
}
