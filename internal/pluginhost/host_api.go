package pluginhost

import (
	"log/slog"
	"sync/atomic"

	"pane-renamer/internal/plugin"
)

// hostCall is the plugin.Host handed to a single hook invocation. It goes
// inert when the hook returns, so a plugin that keeps it can't act later.
// While active, every method runs with the runtime holding mu.
type hostCall struct {
	rt     *Runtime
	inst   *instance
	active atomic.Bool
}

var _ plugin.Host = (*hostCall)(nil)

func (h *hostCall) live(op string) bool {
	if !h.active.Load() {
		slog.Debug("[host] call outside hook ignored", "op", op)
		return false
	}
	return true
}

func (h *hostCall) RequestPermission(permissions ...plugin.PermissionType) {
	if !h.live("request_permission") {
		return
	}
	h.inst.pending = append(h.inst.pending, permissions...)
}

func (h *hostCall) Subscribe(events ...plugin.EventType) {
	if !h.live("subscribe") {
		return
	}
	for _, ev := range events {
		h.inst.subscribed[ev] = struct{}{}
	}
}

func (h *hostCall) Unsubscribe(events ...plugin.EventType) {
	if !h.live("unsubscribe") {
		return
	}
	for _, ev := range events {
		delete(h.inst.subscribed, ev)
	}
}

// RenameTerminalPane queues the rename when the instance holds
// ChangeApplicationState and drops it otherwise. The plugin never learns
// which happened.
func (h *hostCall) RenameTerminalPane(paneID uint32, title string) {
	if !h.live("rename_terminal_pane") {
		return
	}
	if _, ok := h.inst.granted[plugin.ChangeApplicationState]; !ok {
		h.rt.dropped.Add(1)
		slog.Debug("[host] rename dropped: permission not granted",
			"plugin", h.inst.name,
			"pane", paneID,
		)
		return
	}
	h.rt.enqueueRename(renameRequest{instance: h.inst.id, plugin: h.inst.name, paneID: paneID, title: title})
}
