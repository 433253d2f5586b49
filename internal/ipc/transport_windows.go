package ipc

import (
	"fmt"
	"net"
	"regexp"
	"time"

	"github.com/Microsoft/go-winio"
	"golang.org/x/sys/windows"
)

const defaultPipePrefix = `\\.\pipe\pane-renamer-`

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\pane-renamer-[a-z0-9._-]{1,128}$`)

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

func defaultPipeName(username string) string {
	return defaultPipePrefix + username
}

func validPipeName(name string) bool {
	return pipeNamePattern.MatchString(name)
}

// listen creates a Named Pipe listener restricted to SYSTEM and the current
// user's SID.
func listen(pipeName string) (net.Listener, error) {
	securityDescriptor, err := pipeSecurityDescriptor()
	if err != nil {
		return nil, err
	}
	return winio.ListenPipe(pipeName, &winio.PipeConfig{
		SecurityDescriptor: securityDescriptor,
		MessageMode:        false,
		InputBufferSize:    int32(maxPipeRequestBytes),
		OutputBufferSize:   int32(maxPipeResponseBytes),
	})
}

func dial(pipeName string, timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(pipeName, &timeout)
}

func pipeSecurityDescriptor() (string, error) {
	tokenUser, err := windows.GetCurrentProcessToken().GetTokenUser()
	if err != nil {
		return "", fmt.Errorf("resolve current user token: %w", err)
	}
	sid := tokenUser.User.Sid.String()
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %s", sid)
	}
	// D:P protected DACL; full access for SYSTEM and the current user only.
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}
