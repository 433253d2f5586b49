//go:build !windows

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pane-renamer/internal/ipc"
)

func shortSocketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "pp")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "pane-renamer-pipe.sock")
}

func startHost(t *testing.T, handler ipc.MessageHandlerFunc) string {
	t.Helper()
	pipeName := shortSocketPath(t)
	server := ipc.NewPipeServer(pipeName, handler)
	if err := server.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return pipeName
}

func TestRunSendsMessage(t *testing.T) {
	got := make(chan ipc.PipeRequest, 1)
	pipeName := startHost(t, func(_ context.Context, req ipc.PipeRequest) ipc.PipeResponse {
		got <- req
		return ipc.PipeResponse{Delivered: 1}
	})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--pipe", pipeName, "--name", "rename", "--arg", "a=1", "5:logs"}, strings.NewReader(""), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit %d: %s", code, stderr.String())
	}
	if strings.TrimSpace(stdout.String()) != "delivered to 1 plugin(s)" {
		t.Fatalf("stdout = %q", stdout.String())
	}
	req := <-got
	if req.Name != "rename" || req.Payload == nil || *req.Payload != "5:logs" || req.Args["a"] != "1" || req.PipeID == "" {
		t.Fatalf("request = %+v", req)
	}
}

func TestRunPropagatesHostExitCode(t *testing.T) {
	pipeName := startHost(t, func(context.Context, ipc.PipeRequest) ipc.PipeResponse {
		return ipc.PipeResponse{ExitCode: 3, Stderr: "no plugin named \"nope\"\n"}
	})

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--pipe", pipeName, "--plugin", "nope", "1:x"}, strings.NewReader(""), &stdout, &stderr)
	if code != 3 {
		t.Fatalf("exit = %d, want 3", code)
	}
	if !strings.Contains(stderr.String(), `no plugin named "nope"`) {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunReportsMissingHost(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--pipe", shortSocketPath(t), "1:x"}, strings.NewReader(""), &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "no host running") {
		t.Fatalf("exit %d, stderr %q", code, stderr.String())
	}
}
