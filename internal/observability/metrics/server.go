package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Renderer writes one collector in Prometheus text format.
type Renderer interface {
	Render(b *strings.Builder)
}

// Handler exposes the process wide collectors.
func Handler() http.Handler {
	return HandlerFor(httpCollector, relayCollector)
}

// HandlerFor exposes the given collectors in Prometheus text exposition format.
func HandlerFor(collectors ...Renderer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		var builder strings.Builder
		builder.Grow(2048)
		for _, c := range collectors {
			c.Render(&builder)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, builder.String())
	})
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
// It blocks until ctx is cancelled or the listener fails.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
