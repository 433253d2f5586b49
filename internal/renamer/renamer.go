// Package renamer implements the pane renamer plugin: it relays pipe
// messages of the form "<pane-id>:<title>" to the host's pane rename call.
package renamer

import (
	"io"
	"strconv"
	"strings"

	"pane-renamer/internal/plugin"
)

// Name is the name the host registers the plugin under.
const Name = "pane-renamer"

// Command is a parsed rename request.
type Command struct {
	PaneID uint32
	Title  string
}

// ParseCommand splits payload at the first colon and parses the pane id as
// an unsigned 32-bit decimal. Everything after the first colon, including
// further colons, is the title.
func ParseCommand(payload string) (Command, bool) {
	idPart, title, found := strings.Cut(payload, ":")
	if !found {
		return Command{}, false
	}
	paneID, ok := parsePaneID(idPart)
	if !ok {
		return Command{}, false
	}
	return Command{PaneID: paneID, Title: title}, true
}

func parsePaneID(raw string) (uint32, bool) {
	// A single leading '+' is accepted; strconv.ParseUint rejects it.
	digits := strings.TrimPrefix(raw, "+")
	if digits == "" || digits[0] == '+' {
		return 0, false
	}
	v, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(v), true
}

// PaneRenamer is a stateless command relay. The zero value is ready to use.
type PaneRenamer struct{}

var _ plugin.Plugin = PaneRenamer{}

// Load requests the permission needed to rename panes and subscribes to the
// permission result. The configuration is ignored.
func (PaneRenamer) Load(host plugin.Host, _ map[string]string) {
	host.RequestPermission(plugin.ChangeApplicationState)
	host.Subscribe(plugin.PermissionRequestResult)
}

// Pipe relays a well-formed payload regardless of the message name.
// Malformed payloads are dropped silently. The message is never blocked.
func (PaneRenamer) Pipe(host plugin.Host, message plugin.PipeMessage) bool {
	if message.Payload == nil {
		return false
	}
	if cmd, ok := ParseCommand(*message.Payload); ok {
		host.RenameTerminalPane(cmd.PaneID, cmd.Title)
	}
	return false
}

// Update ignores every event.
func (PaneRenamer) Update(plugin.Host, plugin.Event) bool {
	return false
}

// Render draws nothing.
func (PaneRenamer) Render(io.Writer, int, int) {}
