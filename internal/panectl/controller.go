// Package panectl forwards pane renames to the terminal multiplexer that owns
// the panes.
package panectl

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"pane-renamer/internal/ipc"
)

// Controller renames a pane owned by the multiplexer.
type Controller interface {
	RenamePane(ctx context.Context, paneID uint32, title string) error
}

// ControllerFunc adapts a function to Controller.
type ControllerFunc func(ctx context.Context, paneID uint32, title string) error

func (f ControllerFunc) RenamePane(ctx context.Context, paneID uint32, title string) error {
	return f(ctx, paneID, title)
}

// paneTarget formats a numeric pane id the way tmux addresses panes.
func paneTarget(paneID uint32) string {
	return "%" + strconv.FormatUint(uint64(paneID), 10)
}

// CmdRunner abstracts command execution for testability.
type CmdRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name and returns its trimmed combined output.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	hideWindow(cmd)
	out, err := cmd.CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// Tmux renames panes with `tmux select-pane -T`.
type Tmux struct {
	Binary string
	Runner CmdRunner
}

// NewTmux returns a Tmux controller using binary (default "tmux").
func NewTmux(binary string) *Tmux {
	if strings.TrimSpace(binary) == "" {
		binary = "tmux"
	}
	return &Tmux{Binary: binary, Runner: ExecRunner{}}
}

func (t *Tmux) RenamePane(ctx context.Context, paneID uint32, title string) error {
	out, err := t.Runner.Run(ctx, t.Binary, "select-pane", "-t", paneTarget(paneID), "-T", title)
	if err != nil {
		if out != "" {
			return fmt.Errorf("tmux select-pane %s: %w: %s", paneTarget(paneID), err, out)
		}
		return fmt.Errorf("tmux select-pane %s: %w", paneTarget(paneID), err)
	}
	return nil
}

// PipeForwarder sends a tmux-compatible select-pane request to a pane server
// listening on a pipe.
type PipeForwarder struct {
	PipeName string
	send     func(ctx context.Context, pipeName string, req ipc.TmuxRequest) (ipc.TmuxResponse, error)
}

// NewPipeForwarder returns a forwarder targeting pipeName.
func NewPipeForwarder(pipeName string) *PipeForwarder {
	return &PipeForwarder{PipeName: pipeName, send: ipc.SendTmux}
}

func (f *PipeForwarder) RenamePane(ctx context.Context, paneID uint32, title string) error {
	req := ipc.TmuxRequest{
		Command: "select-pane",
		Flags: map[string]any{
			"-t": paneTarget(paneID),
			"-T": title,
		},
	}
	resp, err := f.send(ctx, f.PipeName, req)
	if err != nil {
		return fmt.Errorf("forward select-pane to %s: %w", f.PipeName, err)
	}
	if resp.ExitCode != 0 {
		return fmt.Errorf("select-pane %s exited %d: %s", paneTarget(paneID), resp.ExitCode, strings.TrimSpace(resp.Stderr))
	}
	return nil
}

// Log only records renames. Useful as a dry run.
type Log struct{}

func (Log) RenamePane(_ context.Context, paneID uint32, title string) error {
	slog.Info("[panectl] rename pane", "pane", paneTarget(paneID), "title", title)
	return nil
}
