package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/parley/internal/health"
	"github.com/MrWong99/parley/internal/observe"
)

// newMux builds the handler of the metrics/health server.
func (a *App) newMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(
		health.QuotaChecker(a.providers.Quota),
		health.ProvidersChecker(map[string]bool{
			"stt": a.providers.STT != nil,
			"llm": a.providers.LLM != nil,
			"tts": a.providers.TTS != nil,
		}),
	)
	h.Register(mux)
	return observe.Middleware(a.metrics)(mux)
}

// serve runs the metrics/health server until ctx is done. It returns once
// the listener is closed.
func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.newMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("metrics server listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return fmt.Errorf("app: metrics server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown", "err", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("app: metrics server: %w", err)
	}
	return nil
}
