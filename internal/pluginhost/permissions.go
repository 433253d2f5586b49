package pluginhost

import (
	"context"
	"log/slog"
	"slices"

	"pane-renamer/internal/plugin"
)

// resolvePermissions answers the requests inst made during its last hook.
// Previously cached grants apply silently. New permissions are granted only
// if the policy allows every one of them; otherwise the request is denied as
// a whole. Subscribers receive a PermissionRequestResult; requests made while
// handling that event wait for the next hook. Callers hold mu.
func (rt *Runtime) resolvePermissions(ctx context.Context, inst *instance) {
	pending := inst.pending
	inst.pending = nil
	if len(pending) == 0 {
		return
	}

	cached := rt.cachedGrants(ctx, inst.name)
	var fresh []plugin.PermissionType
	allowed := true
	for _, perm := range pending {
		if _, ok := inst.granted[perm]; ok {
			continue
		}
		if _, ok := cached[perm]; ok {
			continue
		}
		if _, ok := rt.autoGrant[perm]; !ok {
			allowed = false
			break
		}
		if !slices.Contains(fresh, perm) {
			fresh = append(fresh, perm)
		}
	}

	status := plugin.PermissionDenied
	if allowed {
		status = plugin.PermissionGranted
		for _, perm := range pending {
			inst.granted[perm] = struct{}{}
		}
		rt.persistGrants(ctx, inst.name, fresh)
	}
	slog.Info("[host] permission request answered",
		"plugin", inst.name,
		"requested", pending,
		"status", status,
	)

	if _, ok := inst.subscribed[plugin.PermissionRequestResult]; !ok {
		return
	}
	event := plugin.Event{Type: plugin.PermissionRequestResult, PermissionStatus: status}
	rt.invoke(inst, "update", func(h plugin.Host) { inst.plugin.Update(h, event) })
}

func (rt *Runtime) cachedGrants(ctx context.Context, pluginName string) map[plugin.PermissionType]struct{} {
	if rt.grants == nil {
		return nil
	}
	perms, err := rt.grants.Granted(ctx, pluginName)
	if err != nil {
		slog.Warn("[host] failed to read cached grants", "plugin", pluginName, "error", err)
		return nil
	}
	return permissionSet(perms)
}

func (rt *Runtime) persistGrants(ctx context.Context, pluginName string, perms []plugin.PermissionType) {
	if rt.grants == nil || len(perms) == 0 {
		return
	}
	if err := rt.grants.Grant(ctx, pluginName, perms...); err != nil {
		slog.Warn("[host] failed to cache grants", "plugin", pluginName, "error", err)
	}
}

func permissionSet(perms []plugin.PermissionType) map[plugin.PermissionType]struct{} {
	set := make(map[plugin.PermissionType]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

func sortedPermissions(set map[plugin.PermissionType]struct{}) []plugin.PermissionType {
	out := make([]plugin.PermissionType, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func sortedEvents(set map[plugin.EventType]struct{}) []plugin.EventType {
	out := make([]plugin.EventType, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}
