//go:build !windows

package panectl

import (
	"context"
	"os/exec"
	"testing"
)

func TestExecRunnerTrimsCombinedOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	out, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo ' renamed '; echo oops >&2")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "renamed \noops" {
		t.Fatalf("Run() = %q", out)
	}
}

func TestExecRunnerReportsExitStatus(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	out, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo \"can't find pane\"; exit 1")
	if err == nil {
		t.Fatal("Run() error = nil, want exit status")
	}
	if out != "can't find pane" {
		t.Fatalf("Run() output = %q", out)
	}
}
