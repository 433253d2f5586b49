package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	defaultPipeDialTimeout = 3 * time.Second
	defaultPipeRWTimeout   = 15 * time.Second
	maxPipeResponseBytes   = 64 * 1024
)

// Send delivers one pipe message to the host and waits for its routing result.
func Send(ctx context.Context, pipeName string, req PipeRequest) (PipeResponse, error) {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	var resp PipeResponse
	if err := roundTrip(ctx, pipeName, req, &resp); err != nil {
		return PipeResponse{}, err
	}
	return resp, nil
}

// SendTmux sends one tmux-compatible command to a pane server pipe.
func SendTmux(ctx context.Context, pipeName string, req TmuxRequest) (TmuxResponse, error) {
	if pipeName == "" {
		return TmuxResponse{}, errors.New("tmux pipe name required")
	}
	var resp TmuxResponse
	if err := roundTrip(ctx, pipeName, req, &resp); err != nil {
		return TmuxResponse{}, err
	}
	return resp, nil
}

func roundTrip(ctx context.Context, pipeName string, req any, resp any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := dial(pipeName, defaultPipeDialTimeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(defaultPipeRWTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	rawReq, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if _, err := conn.Write(append(rawReq, '\n')); err != nil {
		return err
	}

	rawResp, err := readDelimitedFrame(bufio.NewReaderSize(conn, maxPipeResponseBytes+1), maxPipeResponseBytes)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(rawResp, resp); err != nil {
		return fmt.Errorf("invalid response: %w", err)
	}
	return nil
}

// readDelimitedFrame reads one newline-terminated frame. A final frame
// without a delimiter is accepted at EOF.
func readDelimitedFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// IsConnectionError reports whether err means the server is absent or
// unreachable.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	return false
}
