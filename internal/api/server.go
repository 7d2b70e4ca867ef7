package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Adda-Baaj/trendwatch/internal/logger"
)

const shutdownTimeout = 10 * time.Second

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, log logger.Logger) error {
	log = logger.Ensure(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.InfoObj("http server listening", "http_listen", map[string]any{"addr": addr})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	log.InfoObj("http server stopped", "http_stop", nil)
	return nil
}
