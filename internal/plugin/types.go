// Package plugin defines the contract between the plugin host runtime and the
// plugins it loads.
//
// The host owns every plugin instance and invokes exactly one hook at a time.
// Hooks receive a Host for the duration of the call; plugins must not retain
// it after the hook returns.
package plugin

import (
	"fmt"
	"io"
	"strings"
)

// PermissionType is a privileged host operation a plugin must request before
// the host will honor it.
type PermissionType string

const (
	ReadApplicationState         PermissionType = "ReadApplicationState"
	ChangeApplicationState       PermissionType = "ChangeApplicationState"
	OpenFiles                    PermissionType = "OpenFiles"
	RunCommands                  PermissionType = "RunCommands"
	OpenTerminalsOrPlugins       PermissionType = "OpenTerminalsOrPlugins"
	WriteToStdin                 PermissionType = "WriteToStdin"
	ReadCliPipes                 PermissionType = "ReadCliPipes"
	MessageAndLaunchOtherPlugins PermissionType = "MessageAndLaunchOtherPlugins"
)

var knownPermissions = []PermissionType{
	ReadApplicationState,
	ChangeApplicationState,
	OpenFiles,
	RunCommands,
	OpenTerminalsOrPlugins,
	WriteToStdin,
	ReadCliPipes,
	MessageAndLaunchOtherPlugins,
}

// KnownPermissions returns every permission the host understands.
func KnownPermissions() []PermissionType {
	out := make([]PermissionType, len(knownPermissions))
	copy(out, knownPermissions)
	return out
}

// ParsePermissionType resolves a permission name case-insensitively.
func ParsePermissionType(name string) (PermissionType, error) {
	trimmed := strings.TrimSpace(name)
	for _, p := range knownPermissions {
		if strings.EqualFold(string(p), trimmed) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown permission %q", name)
}

// EventType identifies a class of host event a plugin can subscribe to.
type EventType string

const (
	PermissionRequestResult EventType = "PermissionRequestResult"
	PaneUpdate              EventType = "PaneUpdate"
	ModeUpdate              EventType = "ModeUpdate"
	Timer                   EventType = "Timer"
)

// PermissionStatus is the host's answer to a permission request.
type PermissionStatus string

const (
	PermissionGranted PermissionStatus = "Granted"
	PermissionDenied  PermissionStatus = "Denied"
)

// Event is a host-delivered notification.
type Event struct {
	Type EventType
	// PermissionStatus is set for PermissionRequestResult events.
	PermissionStatus PermissionStatus
}

// PipeSourceKind describes where a pipe message originated.
type PipeSourceKind string

const (
	PipeSourceCLI     PipeSourceKind = "cli"
	PipeSourcePlugin  PipeSourceKind = "plugin"
	PipeSourceKeybind PipeSourceKind = "keybind"
)

// PipeSource identifies the sender of a pipe message. ID is the CLI pipe id
// or the sending plugin's instance id; it is empty for keybinds.
type PipeSource struct {
	Kind PipeSourceKind
	ID   string
}

// PipeMessage is a host-routed, named message with an optional text payload.
type PipeMessage struct {
	Source    PipeSource
	Name      string
	Payload   *string
	Args      map[string]string
	IsPrivate bool
}

// Host is the capability surface a plugin may call during a hook.
type Host interface {
	RequestPermission(permissions ...PermissionType)
	Subscribe(events ...EventType)
	Unsubscribe(events ...EventType)
	// RenameTerminalPane is fire-and-forget. Failures (missing permission,
	// unknown pane) are absorbed by the host.
	RenameTerminalPane(paneID uint32, title string)
}

// Plugin is implemented by every module the host can load.
type Plugin interface {
	Load(host Host, configuration map[string]string)
	// Pipe handles one pipe message. Returning true blocks the message from
	// reaching plugins later in the routing order.
	Pipe(host Host, message PipeMessage) bool
	// Update handles one event and reports whether a redraw is needed.
	Update(host Host, event Event) bool
	Render(w io.Writer, rows, cols int)
}
