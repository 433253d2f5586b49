package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"pane-renamer/internal/config"
	"pane-renamer/internal/ipc"
	"pane-renamer/internal/panectl"
	"pane-renamer/internal/permstore"
	"pane-renamer/internal/pluginhost"
	"pane-renamer/internal/renamer"
	"pane-renamer/internal/singleinstance"
)

var defaultConfigPath = config.DefaultPath

func newServeCmd(levelVar *slog.LevelVar) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load the pane renamer plugin and listen for pipe messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPathFlag(cmd), levelVar, nil)
		},
	}
}

// runServe blocks until ctx is cancelled. ready, when non-nil, receives the
// listen address once the pipe server is up.
func runServe(ctx context.Context, configPath string, levelVar *slog.LevelVar, ready chan<- string) error {
	cfg, err := config.EnsureFile(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyLogLevel(levelVar, cfg.LogLevel)

	store, err := permstore.Open(cfg.PermissionCachePath(configPath))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("[host] failed to close permission store", "error", err)
		}
	}()

	ctrl, err := panectl.New(cfg.Backend)
	if err != nil {
		return err
	}

	rt := pluginhost.New(ctrl, store, pluginhost.Options{
		AutoGrant:     cfg.AutoGrantPermissions(),
		QueueSize:     cfg.RenameQueueSize,
		RenameTimeout: cfg.Backend.Timeout,
	})
	defer func() {
		_ = rt.Close()
		stats := rt.Stats()
		slog.Info("[host] runtime closed",
			"forwarded", stats.RenamesForwarded,
			"failed", stats.RenamesFailed,
			"dropped", stats.RenamesDropped,
		)
	}()

	if _, err := rt.Load(ctx, renamer.Name, renamer.PaneRenamer{}, cfg.PluginConfig); err != nil {
		return err
	}

	server := ipc.NewPipeServer(cfg.PipeName, rt)
	lock, err := singleinstance.TryLock(singleinstance.LockName(server.PipeName()))
	if err != nil {
		if errors.Is(err, singleinstance.ErrAlreadyRunning) {
			return fmt.Errorf("a host is already serving %s", server.PipeName())
		}
		return err
	}
	defer lock.Release()

	if err := server.Start(); err != nil {
		return fmt.Errorf("start pipe server: %w", err)
	}
	defer func() {
		if err := server.Stop(); err != nil {
			slog.Warn("[host] failed to stop pipe server cleanly", "error", err)
		}
	}()
	slog.Info("[host] pipe server listening", "pipe", server.PipeName(), "backend", cfg.Backend.Kind)

	watcher, err := config.Watch(ctx, configPath, func(next config.Config) {
		applyLogLevel(levelVar, next.LogLevel)
		rt.SetAutoGrant(next.AutoGrantPermissions())
		if next.PipeName != cfg.PipeName || next.Backend != cfg.Backend {
			slog.Warn("[host] pipe_name and backend changes take effect after restart")
		}
	})
	if err != nil {
		slog.Warn("[host] config hot reload disabled", "error", err)
	} else {
		defer watcher.Close()
	}

	if ready != nil {
		ready <- server.PipeName()
	}
	<-ctx.Done()
	slog.Info("[host] shutting down")
	return nil
}

func applyLogLevel(levelVar *slog.LevelVar, value string) {
	if levelVar == nil {
		return
	}
	level, err := config.ParseLogLevel(value)
	if err != nil {
		slog.Warn("[host] ignoring invalid log level", "value", value, "error", err)
		return
	}
	levelVar.Set(level)
}
