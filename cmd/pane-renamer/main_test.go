package main

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"pane-renamer/internal/testutil"
)

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	testutil.CaptureLogBuffer(t, slog.LevelInfo)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), code
}

func TestVersionCommand(t *testing.T) {
	out, _, code := runCLI(t, "version")
	if code != 0 || !strings.HasPrefix(out, "pane-renamer ") {
		t.Fatalf("version = %q (exit %d)", out, code)
	}
}

func TestPermissionsGrantListRevoke(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	out, stderr, code := runCLI(t, "--config", configPath, "permissions", "grant", "pane-renamer", "changeapplicationstate", "ReadApplicationState")
	if code != 0 {
		t.Fatalf("grant exit %d: %s", code, stderr)
	}
	if !strings.Contains(out, "granted 2 permission(s) to pane-renamer") {
		t.Fatalf("grant output = %q", out)
	}

	out, stderr, code = runCLI(t, "--config", configPath, "permissions", "list")
	if code != 0 {
		t.Fatalf("list exit %d: %s", code, stderr)
	}
	for _, want := range []string{"PLUGIN", "ChangeApplicationState", "ReadApplicationState"} {
		if !strings.Contains(out, want) {
			t.Fatalf("list output missing %q:\n%s", want, out)
		}
	}

	out, _, code = runCLI(t, "--config", configPath, "permissions", "revoke", "pane-renamer")
	if code != 0 || !strings.Contains(out, "revoked 2 grant(s)") {
		t.Fatalf("revoke = %q (exit %d)", out, code)
	}

	out, _, _ = runCLI(t, "--config", configPath, "permissions", "list")
	if strings.Contains(out, "pane-renamer") {
		t.Fatalf("grants survived revoke:\n%s", out)
	}
}

func TestPermissionsGrantRejectsUnknownPermission(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	_, stderr, code := runCLI(t, "--config", configPath, "permissions", "grant", "pane-renamer", "LaunchMissiles")
	if code != 1 || !strings.Contains(stderr, "unknown permission") {
		t.Fatalf("exit %d, stderr %q", code, stderr)
	}
}

func TestUnknownCommandFails(t *testing.T) {
	_, _, code := runCLI(t, "frobnicate")
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
}
