package pluginhost

import (
	"context"
	"log/slog"
)

type renameRequest struct {
	instance InstanceID
	plugin   string
	paneID   uint32
	title    string
}

// enqueueRename never blocks the hook: a full queue drops the rename.
// Callers hold mu.
func (rt *Runtime) enqueueRename(req renameRequest) {
	if rt.closed {
		rt.dropped.Add(1)
		return
	}
	select {
	case rt.queue <- req:
		rt.queued.Add(1)
	default:
		rt.dropped.Add(1)
		slog.Warn("[host] rename queue full, dropping rename",
			"plugin", req.plugin,
			"pane", req.paneID,
			"capacity", cap(rt.queue),
		)
	}
}

// drainRenames forwards queued renames in order until the runtime closes,
// then flushes what is left.
func (rt *Runtime) drainRenames(ctx context.Context) {
	for {
		select {
		case req := <-rt.queue:
			rt.forwardRename(ctx, req)
		case <-ctx.Done():
			for {
				select {
				case req := <-rt.queue:
					rt.forwardRename(ctx, req)
				default:
					return
				}
			}
		}
	}
}

func (rt *Runtime) forwardRename(ctx context.Context, req renameRequest) {
	if rt.ctrl == nil {
		rt.failed.Add(1)
		return
	}
	// The flush after Close must still reach the backend.
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rt.renameTimeout)
	defer cancel()

	if err := rt.ctrl.RenamePane(callCtx, req.paneID, req.title); err != nil {
		rt.failed.Add(1)
		slog.Warn("[host] pane rename failed",
			"plugin", req.plugin,
			"instance", req.instance,
			"pane", req.paneID,
			"error", err,
		)
		return
	}
	rt.forwarded.Add(1)
	slog.Debug("[host] pane renamed", "plugin", req.plugin, "pane", req.paneID, "title", req.title)
}
