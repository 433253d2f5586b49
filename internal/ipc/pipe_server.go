package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"pane-renamer/internal/workerutil"
)

const (
	defaultPipeConnTimeout              = 30 * time.Second
	maxPipeRequestBytes                 = 64 * 1024
	defaultPipeMaxConcurrentConnections = 64
	connSlotAcquireTimeout              = 5 * time.Second
)

var (
	ErrServerStarted   = errors.New("pipe server already started")
	ErrHandlerRequired = errors.New("pipe server requires handler")
)

// PipeServer accepts pipe messages from clients, one request per connection.
type PipeServer struct {
	pipeName string
	handler  MessageHandler

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	started   bool
	wg        sync.WaitGroup
	connSlots chan struct{}
}

// NewPipeServer constructs a PipeServer. An empty pipeName selects
// DefaultPipeName().
func NewPipeServer(pipeName string, handler MessageHandler) *PipeServer {
	ctx, cancel := context.WithCancel(context.Background())
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	return &PipeServer{
		pipeName:  pipeName,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		connSlots: make(chan struct{}, defaultPipeMaxConcurrentConnections),
	}
}

// PipeName returns the listen address.
func (s *PipeServer) PipeName() string {
	return s.pipeName
}

// Start begins listening.
func (s *PipeServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrServerStarted
	}
	if s.handler == nil {
		return ErrHandlerRequired
	}

	listener, err := listen(s.pipeName)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.pipeName, err)
	}

	s.listener = listener
	s.started = true
	workerutil.RunWithPanicRecovery(s.ctx, "ipc-accept", &s.wg, s.acceptLoop, workerutil.RecoveryOptions{
		IsShutdown: func() bool { return s.ctx.Err() != nil },
	})
	return nil
}

// Stop closes the listener and waits for in-flight connections.
func (s *PipeServer) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	if listener != nil {
		if err := listener.Close(); err != nil {
			slog.Warn("[ipc] failed to close pipe listener during shutdown", "error", err)
		}
	}
	s.wg.Wait()
	return nil
}

func (s *PipeServer) acceptLoop(ctx context.Context) {
	consecutiveErrors := 0
	for {
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			return
		}

		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			if consecutiveErrors > 10 {
				slog.Warn("[ipc] accept loop: repeated failures", "error", err, "count", consecutiveErrors)
				time.Sleep(500 * time.Millisecond)
			} else {
				slog.Debug("[ipc] accept error", "error", err)
			}
			continue
		}
		consecutiveErrors = 0

		if !s.acquireConnectionSlot() {
			writeFrame(conn, PipeResponse{ExitCode: 1, Stderr: "server busy, try again later\n"})
			if closeErr := conn.Close(); closeErr != nil {
				slog.Debug("[ipc] failed to close rejected connection", "error", closeErr)
			}
			continue
		}

		s.wg.Go(func() {
			defer s.releaseConnectionSlot()
			s.handleConnection(ctx, conn)
		})
	}
}

// handleConnection reads one request frame, routes it, and writes one
// response frame.
func (s *PipeServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(defaultPipeConnTimeout)); err != nil {
		slog.Warn("[ipc] failed to set connection deadline", "error", err)
		return
	}

	reader := bufio.NewReaderSize(conn, maxPipeRequestBytes+1)
	rawReq, err := readDelimitedFrame(reader, maxPipeRequestBytes)
	if errors.Is(err, io.EOF) {
		slog.Debug("[ipc] client disconnected without sending data")
		return
	}
	if err != nil {
		writeFrame(conn, PipeResponse{ExitCode: 1, Stderr: fmt.Sprintf("invalid request: %v\n", err)})
		return
	}

	req, err := decodeRequest(rawReq)
	if err != nil {
		writeFrame(conn, PipeResponse{ExitCode: 1, Stderr: fmt.Sprintf("invalid request: %v\n", err)})
		return
	}

	slog.Debug("[ipc] received pipe message",
		"name", req.Name,
		"plugin", req.Plugin,
		"pipeID", req.PipeID,
		"hasPayload", req.Payload != nil,
	)

	writeFrame(conn, s.handler.HandlePipe(ctx, req))
}

// writeFrame writes v as one JSON line.
func writeFrame(conn net.Conn, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Warn("[ipc] failed to encode response", "error", err)
		raw = []byte(`{"exit_code":1,"stderr":"internal encode error\n"}`)
	}
	if _, err := conn.Write(append(raw, '\n')); err != nil {
		slog.Debug("[ipc] failed to write response", "error", err)
	}
}

func (s *PipeServer) acquireConnectionSlot() bool {
	timer := time.NewTimer(connSlotAcquireTimeout)
	defer timer.Stop()
	select {
	case s.connSlots <- struct{}{}:
		return true
	case <-timer.C:
		slog.Warn("[ipc] connection slots exhausted, rejecting client")
		return false
	case <-s.ctx.Done():
		return false
	}
}

func (s *PipeServer) releaseConnectionSlot() {
	select {
	case <-s.connSlots:
	default:
		slog.Warn("[ipc] releaseConnectionSlot: no slot to release")
	}
}
