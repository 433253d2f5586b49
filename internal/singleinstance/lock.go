// Package singleinstance keeps two plugin hosts from serving the same pipe.
package singleinstance

import "errors"

// ErrAlreadyRunning is returned by TryLock when another host holds the lock.
var ErrAlreadyRunning = errors.New("another instance is already running")
