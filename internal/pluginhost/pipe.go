package pluginhost

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/google/uuid"

	"pane-renamer/internal/ipc"
	"pane-renamer/internal/plugin"
)

// PipeResult reports how a pipe message was routed.
type PipeResult struct {
	Delivered int
	Blocked   bool
}

// Pipe delivers msg to instances in load order, or only to instances named
// destination when it is non-empty. Routing stops at the first instance that
// blocks the message. A panicking plugin counts as delivered, not blocked.
func (rt *Runtime) Pipe(ctx context.Context, msg plugin.PipeMessage, destination string) PipeResult {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	var res PipeResult
	for _, inst := range rt.snapshot() {
		if destination != "" && inst.name != destination {
			continue
		}
		blocked := false
		rt.invoke(inst, "pipe", func(h plugin.Host) {
			blocked = inst.plugin.Pipe(h, cloneMessage(msg))
		})
		res.Delivered++
		rt.resolvePermissions(ctx, inst)
		if blocked {
			res.Blocked = true
			slog.Debug("[host] pipe message blocked", "plugin", inst.name, "name", msg.Name)
			break
		}
	}
	return res
}

// HasPlugin reports whether an instance named name is loaded.
func (rt *Runtime) HasPlugin(name string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, inst := range rt.instances {
		if inst.name == name {
			return true
		}
	}
	return false
}

// HandlePipe adapts the runtime to ipc.MessageHandler. Messages arriving over
// ipc are CLI-sourced.
func (rt *Runtime) HandlePipe(ctx context.Context, req ipc.PipeRequest) ipc.PipeResponse {
	if req.Plugin != "" && !rt.HasPlugin(req.Plugin) {
		return ipc.PipeResponse{ExitCode: 1, Stderr: fmt.Sprintf("no plugin named %q is loaded\n", req.Plugin)}
	}
	pipeID := req.PipeID
	if pipeID == "" {
		pipeID = uuid.NewString()
	}
	msg := plugin.PipeMessage{
		Source:  plugin.PipeSource{Kind: plugin.PipeSourceCLI, ID: pipeID},
		Name:    req.Name,
		Payload: req.Payload,
		Args:    req.Args,
	}
	res := rt.Pipe(ctx, msg, req.Plugin)
	return ipc.PipeResponse{Delivered: res.Delivered, Blocked: res.Blocked}
}

var _ ipc.MessageHandler = (*Runtime)(nil)

// cloneMessage gives each plugin its own copy so one can't alter what the
// next one sees.
func cloneMessage(msg plugin.PipeMessage) plugin.PipeMessage {
	out := msg
	if msg.Payload != nil {
		payload := *msg.Payload
		out.Payload = &payload
	}
	out.Args = maps.Clone(msg.Args)
	return out
}
