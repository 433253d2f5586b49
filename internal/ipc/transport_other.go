//go:build !windows

package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"time"
)

var socketNamePattern = regexp.MustCompile(`(?i)^pane-renamer-[a-z0-9._-]{1,128}\.sock$`)

func defaultPipeName(username string) string {
	dir := os.Getenv("XDG_RUNTIME_DIR")
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "pane-renamer-"+username+".sock")
}

func validPipeName(name string) bool {
	return filepath.IsAbs(name) && socketNamePattern.MatchString(filepath.Base(name))
}

// listen creates a unix socket readable and writable by the owner only.
// A stale socket left by a crashed host is removed; a live one is an error.
func listen(pipeName string) (net.Listener, error) {
	if info, err := os.Lstat(pipeName); err == nil {
		if info.Mode().Type() != fs.ModeSocket {
			return nil, fmt.Errorf("%s exists and is not a socket", pipeName)
		}
		if conn, dialErr := net.DialTimeout("unix", pipeName, time.Second); dialErr == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: another host is already listening", pipeName)
		}
		if err := os.Remove(pipeName); err != nil {
			return nil, fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	listener, err := net.Listen("unix", pipeName)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(pipeName, 0o600); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return listener, nil
}

func dial(pipeName string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", pipeName, timeout)
}
