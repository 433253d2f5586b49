package panectl

import (
	"fmt"

	"pane-renamer/internal/config"
)

// New builds the controller named by cfg.Kind.
func New(cfg config.BackendConfig) (Controller, error) {
	switch cfg.Kind {
	case config.BackendTmux, "":
		return NewTmux(cfg.TmuxBinary), nil
	case config.BackendPipe:
		if cfg.TargetPipe == "" {
			return nil, fmt.Errorf("pipe backend requires target_pipe")
		}
		return NewPipeForwarder(cfg.TargetPipe), nil
	case config.BackendLog:
		return Log{}, nil
	default:
		return nil, fmt.Errorf("unknown backend kind %q", cfg.Kind)
	}
}
