// Command pane-pipe sends one pipe message to a running pane-renamer host.
//
//	pane-pipe 12:build
//	echo "12:build" | pane-pipe --stdin --plugin pane-renamer
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"pane-renamer/internal/ipc"
	"pane-renamer/internal/renamer"
)

const (
	sendTimeout  = 10 * time.Second
	maxStdinSize = 64 * 1024
)

// exitError carries a non-zero exit code reported by the host.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

type options struct {
	name    string
	plugin  string
	args    map[string]string
	pipe    string
	stdin   bool
	check   bool
	timeout time.Duration
}

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdin)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintf(stderr, "pane-pipe: %v\n", err)
	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}
	return 1
}

func newRootCmd(stdin io.Reader) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "pane-pipe [flags] [PAYLOAD]",
		Short:         "Send a pipe message to the pane-renamer host",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := buildRequest(opts, args, stdin)
			if err != nil {
				return err
			}
			return send(cmd.Context(), cmd.OutOrStdout(), opts, req)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.name, "name", "", "message name")
	flags.StringVar(&opts.plugin, "plugin", "", "deliver only to this plugin (default: all)")
	flags.StringToStringVar(&opts.args, "arg", nil, "message argument key=value (repeatable)")
	flags.StringVar(&opts.pipe, "pipe", "", "host pipe name (default: per-user pipe)")
	flags.BoolVar(&opts.stdin, "stdin", false, "read the payload from stdin")
	flags.BoolVar(&opts.check, "check", false, "reject payloads that are not <pane-id>:<title>")
	flags.DurationVar(&opts.timeout, "timeout", sendTimeout, "give up after this long")
	return cmd
}

func buildRequest(opts *options, args []string, stdin io.Reader) (ipc.PipeRequest, error) {
	req := ipc.PipeRequest{
		Name:   opts.name,
		Args:   opts.args,
		Plugin: strings.TrimSpace(opts.plugin),
		PipeID: uuid.NewString(),
	}

	switch {
	case opts.stdin && len(args) > 0:
		return req, errors.New("payload argument and --stdin are mutually exclusive")
	case opts.stdin:
		raw, err := io.ReadAll(io.LimitReader(stdin, maxStdinSize+1))
		if err != nil {
			return req, fmt.Errorf("read stdin: %w", err)
		}
		if len(raw) > maxStdinSize {
			return req, fmt.Errorf("stdin payload exceeds %d bytes", maxStdinSize)
		}
		payload := strings.TrimRight(string(raw), "\r\n")
		req.Payload = &payload
	case len(args) == 1:
		payload := args[0]
		req.Payload = &payload
	}

	if opts.check {
		if req.Payload == nil {
			return req, errors.New("--check needs a payload")
		}
		if _, ok := renamer.ParseCommand(*req.Payload); !ok {
			return req, fmt.Errorf("payload %q is not <pane-id>:<title>", *req.Payload)
		}
	}
	return req, nil
}

func send(ctx context.Context, out io.Writer, opts *options, req ipc.PipeRequest) error {
	pipeName := opts.pipe
	if pipeName == "" {
		pipeName = ipc.DefaultPipeName()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	resp, err := ipc.Send(ctx, pipeName, req)
	if err != nil {
		if ipc.IsConnectionError(err) {
			return fmt.Errorf("no host running on %s: %w", pipeName, err)
		}
		return err
	}
	if resp.ExitCode != 0 {
		msg := strings.TrimSpace(resp.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("host exited with code %d", resp.ExitCode)
		}
		return &exitError{code: resp.ExitCode, msg: msg}
	}

	status := fmt.Sprintf("delivered to %d plugin(s)", resp.Delivered)
	if resp.Blocked {
		status += ", blocked"
	}
	_, err = fmt.Fprintln(out, status)
	return err
}
