//go:build windows

package singleinstance

import (
	"errors"
	"fmt"
	"strings"

	"pane-renamer/internal/userutil"

	"golang.org/x/sys/windows"
)

// Lock holds a named mutex. The kernel releases it when the owning process
// terminates.
type Lock struct {
	handle windows.Handle
}

// LockName returns the mutex name guarding pipeName. Mutex names may not
// contain backslashes after the namespace prefix.
func LockName(pipeName string) string {
	base := pipeName
	if i := strings.LastIndex(base, `\`); i >= 0 {
		base = base[i+1:]
	}
	return `Local\` + userutil.SanitizeUsername(base)
}

// TryLock acquires the named mutex without waiting.
func TryLock(name string) (*Lock, error) {
	if name == "" {
		return nil, errors.New("mutex name is required")
	}
	nameUTF16, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("invalid mutex name %q: %w", name, err)
	}
	h, err := windows.CreateMutex(nil, true, nameUTF16)
	if err == windows.ERROR_ALREADY_EXISTS {
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, fmt.Errorf("CreateMutex %q: %w", name, err)
	}
	return &Lock{handle: h}, nil
}

// Release closes the mutex handle. Safe on a nil receiver and idempotent.
func (l *Lock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}
	err := windows.CloseHandle(l.handle)
	l.handle = 0
	return err
}
