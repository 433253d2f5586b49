// Package pluginhost is the host-side runtime adapter. It owns plugin
// instances, invokes their hooks one at a time, answers permission requests,
// routes pipe messages, and forwards pane renames to a panectl.Controller off
// the hook path.
package pluginhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"pane-renamer/internal/panectl"
	"pane-renamer/internal/plugin"
	"pane-renamer/internal/workerutil"
)

const (
	defaultQueueSize     = 64
	defaultRenameTimeout = 5 * time.Second
)

var (
	ErrClosed          = errors.New("plugin runtime closed")
	ErrUnknownInstance = errors.New("unknown plugin instance")
	ErrLoadPanicked    = errors.New("plugin panicked during load")
)

// InstanceID identifies one loaded plugin instance.
type InstanceID string

// GrantStore persists permission grants across host restarts.
type GrantStore interface {
	Granted(ctx context.Context, pluginName string) ([]plugin.PermissionType, error)
	Grant(ctx context.Context, pluginName string, permissions ...plugin.PermissionType) error
}

// Options configures a Runtime. Zero values take defaults.
type Options struct {
	// AutoGrant lists permissions granted without asking. Requests for
	// anything else are denied.
	AutoGrant     []plugin.PermissionType
	QueueSize     int
	RenameTimeout time.Duration
}

// Stats counts rename traffic through the runtime.
type Stats struct {
	RenamesQueued    uint64
	RenamesForwarded uint64
	RenamesFailed    uint64
	RenamesDropped   uint64
}

// InstanceInfo describes a loaded instance.
type InstanceInfo struct {
	ID            InstanceID
	Name          string
	Granted       []plugin.PermissionType
	Subscriptions []plugin.EventType
}

type instance struct {
	id         InstanceID
	name       string
	plugin     plugin.Plugin
	granted    map[plugin.PermissionType]struct{}
	subscribed map[plugin.EventType]struct{}
	// pending holds permissions requested during the current hook.
	pending []plugin.PermissionType
}

// Runtime hosts plugins. All hooks are serialized by mu: the runtime never
// invokes two hooks concurrently.
type Runtime struct {
	ctrl   panectl.Controller
	grants GrantStore

	renameTimeout time.Duration
	queue         chan renameRequest

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	instances []*instance
	autoGrant map[plugin.PermissionType]struct{}
	closed    bool

	queued, forwarded, failed, dropped atomic.Uint64
}

// New builds a Runtime and starts its rename worker. grants may be nil, in
// which case nothing is remembered across restarts.
func New(ctrl panectl.Controller, grants GrantStore, opts Options) *Runtime {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.RenameTimeout <= 0 {
		opts.RenameTimeout = defaultRenameTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		ctrl:          ctrl,
		grants:        grants,
		renameTimeout: opts.RenameTimeout,
		queue:         make(chan renameRequest, opts.QueueSize),
		ctx:           ctx,
		cancel:        cancel,
		autoGrant:     permissionSet(opts.AutoGrant),
	}
	workerutil.RunWithPanicRecovery(ctx, "rename-queue", &rt.wg, rt.drainRenames, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return ctx.Err() != nil },
	})
	return rt
}

// Close stops accepting work, forwards renames still queued, and waits for
// the worker.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.closed {
		rt.mu.Unlock()
		return nil
	}
	rt.closed = true
	rt.mu.Unlock()

	rt.cancel()
	rt.wg.Wait()
	return nil
}

// SetAutoGrant replaces the auto-grant policy for future requests.
func (rt *Runtime) SetAutoGrant(perms []plugin.PermissionType) {
	rt.mu.Lock()
	rt.autoGrant = permissionSet(perms)
	rt.mu.Unlock()
}

// Load instantiates a plugin under name, runs its Load hook, and answers any
// permission request it made.
func (rt *Runtime) Load(ctx context.Context, name string, p plugin.Plugin, configuration map[string]string) (InstanceID, error) {
	if p == nil {
		return "", errors.New("plugin required")
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.closed {
		return "", ErrClosed
	}

	inst := &instance{
		id:         InstanceID(uuid.NewString()),
		name:       name,
		plugin:     p,
		granted:    map[plugin.PermissionType]struct{}{},
		subscribed: map[plugin.EventType]struct{}{},
	}
	if configuration == nil {
		configuration = map[string]string{}
	}

	if !rt.invoke(inst, "load", func(h plugin.Host) { p.Load(h, configuration) }) {
		return "", fmt.Errorf("load %s: %w", name, ErrLoadPanicked)
	}
	rt.instances = append(rt.instances, inst)
	slog.Info("[host] plugin loaded", "plugin", name, "instance", inst.id)

	rt.resolvePermissions(ctx, inst)
	return inst.id, nil
}

// Unload removes an instance. Renames it already queued are still forwarded.
func (rt *Runtime) Unload(id InstanceID) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for i, inst := range rt.instances {
		if inst.id == id {
			rt.instances = append(rt.instances[:i], rt.instances[i+1:]...)
			slog.Info("[host] plugin unloaded", "plugin", inst.name, "instance", id)
			return nil
		}
	}
	return fmt.Errorf("unload %s: %w", id, ErrUnknownInstance)
}

// Instances describes the loaded instances in load order.
func (rt *Runtime) Instances() []InstanceInfo {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]InstanceInfo, 0, len(rt.instances))
	for _, inst := range rt.instances {
		out = append(out, InstanceInfo{
			ID:            inst.id,
			Name:          inst.name,
			Granted:       sortedPermissions(inst.granted),
			Subscriptions: sortedEvents(inst.subscribed),
		})
	}
	return out
}

// Stats returns a snapshot of rename counters.
func (rt *Runtime) Stats() Stats {
	return Stats{
		RenamesQueued:    rt.queued.Load(),
		RenamesForwarded: rt.forwarded.Load(),
		RenamesFailed:    rt.failed.Load(),
		RenamesDropped:   rt.dropped.Load(),
	}
}

// Broadcast delivers event to every subscribed instance and reports whether
// any of them asked for a redraw.
func (rt *Runtime) Broadcast(ctx context.Context, event plugin.Event) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	redraw := false
	for _, inst := range rt.snapshot() {
		if _, ok := inst.subscribed[event.Type]; !ok {
			continue
		}
		rt.invoke(inst, "update", func(h plugin.Host) {
			if inst.plugin.Update(h, event) {
				redraw = true
			}
		})
		rt.resolvePermissions(ctx, inst)
	}
	return redraw
}

// Render asks every instance to draw into w.
func (rt *Runtime) Render(w io.Writer, rows, cols int) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, inst := range rt.snapshot() {
		rt.invoke(inst, "render", func(plugin.Host) { inst.plugin.Render(w, rows, cols) })
	}
}

// snapshot copies the instance list so hooks can't disturb iteration.
// Callers hold mu.
func (rt *Runtime) snapshot() []*instance {
	return append([]*instance(nil), rt.instances...)
}

// invoke runs one hook with a Host bound to inst. A panicking plugin is
// logged and invoke reports false. Callers hold mu.
func (rt *Runtime) invoke(inst *instance, hook string, fn func(plugin.Host)) (ok bool) {
	h := &hostCall{rt: rt, inst: inst}
	h.active.Store(true)
	defer func() {
		h.active.Store(false)
		if r := recover(); r != nil {
			slog.Error("[host] plugin hook panicked",
				"plugin", inst.name,
				"instance", inst.id,
				"hook", hook,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()
	fn(h)
	return true
}
