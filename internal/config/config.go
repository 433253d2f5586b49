package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"pane-renamer/internal/plugin"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	renameRetryBaseDelay     = 10 * time.Millisecond

	appDirName             = "pane-renamer"
	configFileName         = "config.yaml"
	permissionCacheName    = "permissions.db"
	defaultRenameQueueSize = 64
	defaultBackendTimeout  = 5 * time.Second
)

// Backend kinds.
const (
	BackendTmux = "tmux"
	BackendPipe = "pipe"
	BackendLog  = "log"
)

var userHomeDirFn = os.UserHomeDir

// Config is the plugin host configuration.
type Config struct {
	// PipeName is the listen address for pipe messages. Empty selects the
	// per-user default.
	PipeName    string            `yaml:"pipe_name"`
	LogLevel    string            `yaml:"log_level"`
	Backend     BackendConfig     `yaml:"backend"`
	Permissions PermissionsConfig `yaml:"permissions"`
	// RenameQueueSize bounds renames waiting for the backend.
	RenameQueueSize int `yaml:"rename_queue_size"`
	// PluginConfig is handed to the plugin's Load hook as-is.
	PluginConfig map[string]string `yaml:"plugin_config,omitempty"`
}

// BackendConfig selects how renames reach the multiplexer.
type BackendConfig struct {
	Kind       string        `yaml:"kind"`
	TmuxBinary string        `yaml:"tmux_binary,omitempty"`
	TargetPipe string        `yaml:"target_pipe,omitempty"`
	Timeout    time.Duration `yaml:"timeout"`
}

// PermissionsConfig controls how plugin permission requests are answered.
type PermissionsConfig struct {
	// CachePath is the SQLite grant cache. Empty means next to the config file.
	CachePath string `yaml:"cache_path,omitempty"`
	// AutoGrant lists permissions granted without prompting. Anything else
	// is denied.
	AutoGrant []string `yaml:"auto_grant"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Backend: BackendConfig{
			Kind:       BackendTmux,
			TmuxBinary: "tmux",
			Timeout:    defaultBackendTimeout,
		},
		Permissions: PermissionsConfig{
			AutoGrant: []string{string(plugin.ChangeApplicationState)},
		},
		RenameQueueSize: defaultRenameQueueSize,
	}
}

// DefaultPath resolves the config file path: LOCALAPPDATA or APPDATA on
// Windows, XDG_CONFIG_HOME or ~/.config elsewhere, os.TempDir() as a last
// resort.
func DefaultPath() string {
	return filepath.Join(defaultBaseDir(), appDirName, configFileName)
}

func defaultBaseDir() string {
	for _, env := range []string{"LOCALAPPDATA", "APPDATA", "XDG_CONFIG_HOME"} {
		if base := strings.TrimSpace(os.Getenv(env)); base != "" {
			return base
		}
	}
	home, err := userHomeDirFn()
	if err != nil {
		slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
		return os.TempDir()
	}
	return filepath.Join(home, ".config")
}

// PermissionCachePath returns cfg's grant cache path, defaulting to a file
// next to configPath.
func (cfg Config) PermissionCachePath(configPath string) string {
	if p := strings.TrimSpace(cfg.Permissions.CachePath); p != "" {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), permissionCacheName)
}

// AutoGrantPermissions returns the parsed auto-grant list. Load has already
// validated the names.
func (cfg Config) AutoGrantPermissions() []plugin.PermissionType {
	out := make([]plugin.PermissionType, 0, len(cfg.Permissions.AutoGrant))
	for _, name := range cfg.Permissions.AutoGrant {
		if perm, err := plugin.ParsePermissionType(name); err == nil {
			out = append(out, perm)
		}
	}
	return out
}

// Load reads the config file. A missing or empty file yields defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// EnsureFile writes the default config when path does not exist and returns
// the loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Save validates cfg and writes it atomically. It returns the normalized
// config that was written.
func Save(path string, cfg Config) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return cfg, errors.New("config path required")
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(path, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// Clone returns a deep copy of cfg.
func Clone(src Config) Config {
	dst := src
	dst.Permissions.AutoGrant = append([]string(nil), src.Permissions.AutoGrant...)
	if src.PluginConfig != nil {
		dst.PluginConfig = maps.Clone(src.PluginConfig)
	}
	return dst
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in place.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()

	cfg.PipeName = strings.TrimSpace(cfg.PipeName)
	if strings.TrimSpace(cfg.LogLevel) == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if _, err := ParseLogLevel(cfg.LogLevel); err != nil {
		return err
	}

	cfg.Backend.Kind = strings.ToLower(strings.TrimSpace(cfg.Backend.Kind))
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = defaults.Backend.Kind
	}
	switch cfg.Backend.Kind {
	case BackendTmux:
		if strings.TrimSpace(cfg.Backend.TmuxBinary) == "" {
			cfg.Backend.TmuxBinary = defaults.Backend.TmuxBinary
		}
	case BackendPipe:
		if strings.TrimSpace(cfg.Backend.TargetPipe) == "" {
			return errors.New("backend.target_pipe is required for the pipe backend")
		}
	case BackendLog:
	default:
		return fmt.Errorf("unknown backend kind %q (want %s, %s or %s)", cfg.Backend.Kind, BackendTmux, BackendPipe, BackendLog)
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = defaults.Backend.Timeout
	}

	if cfg.Permissions.AutoGrant == nil {
		cfg.Permissions.AutoGrant = []string{}
	}
	for i, name := range cfg.Permissions.AutoGrant {
		perm, err := plugin.ParsePermissionType(name)
		if err != nil {
			return fmt.Errorf("permissions.auto_grant: %w", err)
		}
		cfg.Permissions.AutoGrant[i] = string(perm)
	}

	if cfg.RenameQueueSize < 0 {
		return fmt.Errorf("rename_queue_size must be positive, got %d", cfg.RenameQueueSize)
	}
	if cfg.RenameQueueSize == 0 {
		cfg.RenameQueueSize = defaults.RenameQueueSize
	}
	return nil
}

// ParseLogLevel maps debug|info|warn|error to a slog level.
func ParseLogLevel(value string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q: %w", value, err)
	}
	return level, nil
}

// atomicWrite writes data with temp-file + rename so readers (including the
// config watcher) never see a partial file.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	raw, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

// renameFileWithRetry retries on Windows, where antivirus or indexing can hold
// a short lock on the target.
func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
