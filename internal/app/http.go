package app

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"colloquy/internal/sweeper"
	"colloquy/pkg/api"
	"colloquy/pkg/logger"
)

// startSweeper launches the background migration sweep when enabled.
func (a *App) startSweeper(ctx context.Context) (context.CancelFunc, error) {
	return sweeper.Start(ctx, a.cfg.Sweep, a.engine)
}

// printBanner logs the startup line with build info.
func (a *App) printBanner() {
	ver := a.version
	if a.commit != "none" && a.commit != "" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		ver += " @ " + a.buildDate
	}
	logger.Info("colloquy_starting", "version", ver, "addr", a.cfg.Addr(),
		"db", a.cfg.Server.DBPath, "model", a.cfg.Provider.Model)
}

// startHTTP builds the handler, starts the server in a goroutine and
// returns a channel carrying any fatal server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	apiSrv := api.New(a.mgr, a.engine, a.writes, a.editor, a.version)

	mux := http.NewServeMux()
	mux.Handle("/", apiSrv.Router())
	mux.Handle("/metrics", promhttp.Handler())

	a.srv = &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_listening", "addr", a.cfg.Addr())
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	return errCh
}
