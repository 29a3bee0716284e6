package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// NewServer returns an HTTP server exposing /metrics on the given port.
// The handler is resolved per request, so a registry initialized after the
// server starts is picked up without a restart.
func NewServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		Handler().ServeHTTP(w, r)
	}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve runs the metrics server on the given port until ctx is cancelled,
// then shuts it down gracefully.
func Serve(ctx context.Context, port int) error {
	srv := NewServer(port)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
