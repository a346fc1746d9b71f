// Package app wires configuration, storage, the tool registry, the
// interaction manager and the HTTP surface into one runnable server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"colloquy/pkg/config"
	"colloquy/pkg/interaction"
	"colloquy/pkg/persist"
	"colloquy/pkg/provider"
	"colloquy/pkg/queue"
	"colloquy/pkg/resources"
	"colloquy/pkg/state"
	"colloquy/pkg/store"
	"colloquy/pkg/tools"

	"colloquy/pkg/logger"
)

// App encapsulates the server components and lifecycle.
type App struct {
	cfg       *config.Config
	version   string
	commit    string
	buildDate string

	engine   *persist.Engine
	mgr      *interaction.Manager
	registry *tools.Registry
	writes   *queue.Queue
	editor   tools.EditorContext

	sweepCancel context.CancelFunc
	srv         *http.Server
}

// New initializes everything that does not require a running context:
// state directories, the store, the registry and the manager. Call Run
// to start the sweeper and the HTTP server.
func New(cfg *config.Config, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	if err := state.EnsureStateDirs(cfg.Server.DBPath); err != nil {
		return nil, fmt.Errorf("state layout: %w", err)
	}
	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	a := &App{cfg: cfg, version: version, commit: commit, buildDate: buildDate}
	a.engine = persist.NewEngine()
	a.writes = queue.NewQueue(0)
	a.registry = buildRegistry(cfg)

	workDir, _ := os.Getwd()
	a.editor = tools.EditorContext{
		WorkDir:   workDir,
		Connector: &resources.FilesystemConnector{Root: workDir},
	}

	a.mgr = interaction.NewManager(a.engine, interaction.Deps{
		Client:           newProviderClient(cfg),
		Registry:         a.registry,
		SystemPrompt:     cfg.Provider.SystemPrompt,
		WindowSize:       cfg.Hydration.WindowSize,
		MaxResourceBytes: cfg.MaxResourceBytes(),
	})
	return a, nil
}

// newProviderClient wraps the configured endpoint in retry and throttle
// layers.
func newProviderClient(cfg *config.Config) provider.Client {
	base := provider.NewHTTPClient(cfg.Provider.Endpoint, os.Getenv("COLLOQUY_API_KEY"))
	return provider.NewRetryingClient(base, cfg.Provider.MaxRetries, cfg.Provider.RequestsPerSecond)
}

// buildRegistry discovers built-in, user-directory and remote tools in
// that order, so later sources go through collision resolution against
// earlier ones.
func buildRegistry(cfg *config.Config) *tools.Registry {
	reg := tools.NewRegistry(cfg.Tools.Sets)
	reg.RegisterBuiltins(tools.CoreBuiltins())
	for _, dir := range cfg.Tools.UserDirs {
		if err := reg.DiscoverUserDir(dir); err != nil {
			logger.Warn("tool_dir_discovery_failed", "dir", dir, "error", err)
		}
	}
	for _, rs := range cfg.Tools.RemoteServers {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		descs, err := tools.FetchRemoteDescriptors(ctx, rs.Endpoint)
		cancel()
		if err != nil {
			logger.Warn("remote_tool_discovery_failed", "server", rs.ID, "error", err)
			continue
		}
		reg.DiscoverRemote(rs.ID, descs, tools.RemoteFactory(rs.Endpoint))
	}
	return reg
}

// Run starts the sweeper and the HTTP server, blocking until ctx is
// canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	cancel, err := a.startSweeper(ctx)
	if err != nil {
		return err
	}
	a.sweepCancel = cancel

	a.printBanner()

	errCh := a.startHTTP(ctx)
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases resources in shutdown order: stop the sweeper, stop
// accepting HTTP, drain the write queue, close the store.
func (a *App) Close() error {
	if a.sweepCancel != nil {
		a.sweepCancel()
	}
	if a.srv != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.srv.Shutdown(shCtx)
	}
	a.writes.Close()
	return store.Close()
}
