package ipc

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/user"
	"strings"

	"pane-renamer/internal/userutil"
)

// pipeEnvVar overrides the default listen/dial address when it passes
// validPipeName.
const pipeEnvVar = "PANE_RENAMER_PIPE"

// PipeRequest carries one pipe message from a client to the plugin host.
type PipeRequest struct {
	Name    string            `json:"name"`
	Payload *string           `json:"payload,omitempty"`
	Args    map[string]string `json:"args,omitempty"`
	// Plugin restricts delivery to the named plugin. Empty means broadcast.
	Plugin string `json:"plugin,omitempty"`
	PipeID string `json:"pipe_id,omitempty"`
}

// PipeResponse reports how the host routed a PipeRequest.
type PipeResponse struct {
	ExitCode  int    `json:"exit_code"`
	Delivered int    `json:"delivered"`
	Blocked   bool   `json:"blocked,omitempty"`
	Stderr    string `json:"stderr,omitempty"`
}

// MessageHandler routes a decoded PipeRequest.
type MessageHandler interface {
	HandlePipe(ctx context.Context, req PipeRequest) PipeResponse
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, req PipeRequest) PipeResponse

func (f MessageHandlerFunc) HandlePipe(ctx context.Context, req PipeRequest) PipeResponse {
	return f(ctx, req)
}

// TmuxRequest is a tmux-compatible command sent to a pane server that speaks
// the tmux shim protocol over a pipe.
type TmuxRequest struct {
	Command    string            `json:"command"`
	Flags      map[string]any    `json:"flags,omitempty"` // string or bool values, as tmux CLI flags
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	CallerPane string            `json:"caller_pane,omitempty"`
}

// TmuxResponse is the pane server's reply to a TmuxRequest.
type TmuxResponse struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// DefaultPipeName returns the address the host listens on. A valid
// PANE_RENAMER_PIPE wins; otherwise a per-user default is built.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}

	username := strings.TrimSpace(os.Getenv("USERNAME"))
	if username == "" {
		username = strings.TrimSpace(os.Getenv("USER"))
	}
	if username == "" {
		if current, err := user.Current(); err == nil {
			username = current.Username
		}
	}
	return defaultPipeName(userutil.SanitizeUsername(username))
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv(pipeEnvVar))
	if value == "" {
		return "", false
	}
	if !validPipeName(value) {
		slog.Warn("[ipc] "+pipeEnvVar+" rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func decodeRequest(raw []byte) (PipeRequest, error) {
	var req PipeRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return PipeRequest{}, err
	}
	if req.Args == nil {
		req.Args = map[string]string{}
	}
	return req, nil
}
