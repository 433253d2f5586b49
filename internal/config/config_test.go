package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"pane-renamer/internal/plugin"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Kind != BackendTmux || cfg.RenameQueueSize != defaultRenameQueueSize {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
	if !slices.Equal(cfg.AutoGrantPermissions(), []plugin.PermissionType{plugin.ChangeApplicationState}) {
		t.Fatalf("AutoGrantPermissions() = %v", cfg.AutoGrantPermissions())
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("Load(\"\") expected error")
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `
log_level: DEBUG
backend:
  kind: " PIPE "
  target_pipe: /tmp/mux.sock
  timeout: 2s
permissions:
  auto_grant: [changeapplicationstate, ReadCliPipes]
rename_queue_size: 8
plugin_config:
  mode: quiet
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Backend.Kind != BackendPipe || cfg.Backend.TargetPipe != "/tmp/mux.sock" {
		t.Fatalf("Backend = %+v", cfg.Backend)
	}
	if cfg.Backend.Timeout != 2*time.Second {
		t.Fatalf("Timeout = %v, want 2s", cfg.Backend.Timeout)
	}
	want := []string{"ChangeApplicationState", "ReadCliPipes"}
	if !slices.Equal(cfg.Permissions.AutoGrant, want) {
		t.Fatalf("AutoGrant = %v, want %v", cfg.Permissions.AutoGrant, want)
	}
	if cfg.RenameQueueSize != 8 || cfg.PluginConfig["mode"] != "quiet" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if level, _ := ParseLogLevel(cfg.LogLevel); level != slog.LevelDebug {
		t.Fatalf("log level = %v, want debug", level)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "backend", body: "backend:\n  kind: screen\n", want: "unknown backend"},
		{name: "pipe without target", body: "backend:\n  kind: pipe\n", want: "target_pipe"},
		{name: "permission", body: "permissions:\n  auto_grant: [RootAccess]\n", want: "unknown permission"},
		{name: "queue", body: "rename_queue_size: -1\n", want: "rename_queue_size"},
		{name: "log level", body: "log_level: loud\n", want: "log_level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestLoadMalformedYAMLReturnsDefaultsAndError(t *testing.T) {
	cfg, err := Load(writeConfig(t, t.TempDir(), "backend: [unterminated"))
	if err == nil {
		t.Fatal("Load() expected parse error")
	}
	if cfg.Backend.Kind != BackendTmux {
		t.Fatalf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoadRejectsOversizedFile(t *testing.T) {
	body := "# " + strings.Repeat("x", int(maxConfigFileBytes)) + "\n"
	if _, err := Load(writeConfig(t, t.TempDir(), body)); err == nil || !strings.Contains(err.Error(), "exceeds") {
		t.Fatalf("Load() error = %v, want size error", err)
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Backend = BackendConfig{Kind: BackendLog}
	cfg.PluginConfig = map[string]string{"a": "b"}

	saved, err := Save(path, cfg)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.Backend.Timeout != defaultBackendTimeout {
		t.Fatalf("Save() did not normalize timeout: %v", saved.Backend.Timeout)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 && os.PathSeparator == '/' {
		t.Fatalf("config mode = %o, want owner-only", perm)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Backend.Kind != BackendLog || loaded.PluginConfig["a"] != "b" || loaded.Backend.Timeout != defaultBackendTimeout {
		t.Fatalf("Load() after Save = %+v", loaded)
	}
}

func TestSaveRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend.Kind = "nope"
	if _, err := Save(filepath.Join(t.TempDir(), "config.yaml"), cfg); err == nil {
		t.Fatal("Save() expected validation error")
	}
}

func TestCloneIsDeep(t *testing.T) {
	src := DefaultConfig()
	src.PluginConfig = map[string]string{"k": "v"}
	dst := Clone(src)
	dst.PluginConfig["k"] = "changed"
	dst.Permissions.AutoGrant[0] = "changed"

	if src.PluginConfig["k"] != "v" || src.Permissions.AutoGrant[0] != string(plugin.ChangeApplicationState) {
		t.Fatalf("Clone() shares memory with source: %+v", src)
	}
}

func TestPermissionCachePath(t *testing.T) {
	cfg := DefaultConfig()
	configPath := filepath.Join("base", "pane-renamer", "config.yaml")
	if got, want := cfg.PermissionCachePath(configPath), filepath.Join("base", "pane-renamer", "permissions.db"); got != want {
		t.Fatalf("PermissionCachePath() = %q, want %q", got, want)
	}
	cfg.Permissions.CachePath = "/var/lib/grants.db"
	if got := cfg.PermissionCachePath(configPath); got != "/var/lib/grants.db" {
		t.Fatalf("PermissionCachePath() = %q", got)
	}
}

func TestDefaultPathPrefersEnvironment(t *testing.T) {
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("APPDATA", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got, want := DefaultPath(), filepath.Join("/xdg", "pane-renamer", "config.yaml"); got != want {
		t.Fatalf("DefaultPath() = %q, want %q", got, want)
	}
}

func TestDefaultPathFallsBackToTempDir(t *testing.T) {
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("APPDATA", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	orig := userHomeDirFn
	userHomeDirFn = func() (string, error) { return "", errors.New("no home") }
	t.Cleanup(func() { userHomeDirFn = orig })

	if got, want := DefaultPath(), filepath.Join(os.TempDir(), "pane-renamer", "config.yaml"); got != want {
		t.Fatalf("DefaultPath() = %q, want %q", got, want)
	}
}

func TestEnsureFileWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pane-renamer", "config.yaml")
	cfg, err := EnsureFile(path)
	if err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}
	if cfg.Backend.Kind != BackendTmux {
		t.Fatalf("EnsureFile() = %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	// An existing file is left alone.
	if err := os.WriteFile(path, []byte("backend:\n  kind: log\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err = EnsureFile(path)
	if err != nil || cfg.Backend.Kind != BackendLog {
		t.Fatalf("EnsureFile() on existing file = %+v, %v", cfg, err)
	}
}
