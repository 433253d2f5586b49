// Command pane-renamer hosts the pane renamer plugin: it receives pipe
// messages over a local pipe and forwards rename commands to the terminal
// multiplexer.
package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	levelVar := &slog.LevelVar{}
	slog.SetDefault(newLogger(stderr, levelVar))

	root := newRootCmd(levelVar)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("[host] command failed", "error", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer, level *slog.LevelVar) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newRootCmd(levelVar *slog.LevelVar) *cobra.Command {
	root := &cobra.Command{
		Use:           "pane-renamer",
		Short:         "Rename multiplexer panes from pipe messages",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().String("config", "", "config file path (default: per-user config dir)")

	root.AddCommand(newServeCmd(levelVar))
	root.AddCommand(newPermissionsCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func configPathFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return defaultConfigPath()
	}
	return path
}
