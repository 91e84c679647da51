package supervisor

import (
	"fmt"
	"runtime"

	"github.com/mattjoyce/mcpserve/internal/config"
)

// Mode selects how a worker is exposed to the caller.
type Mode string

const (
	// ModeStream pipes the worker's three standard streams to the caller.
	ModeStream Mode = config.ModeStdio
	// ModeNetwork lets the worker bind its own port; only the process is exposed.
	ModeNetwork Mode = config.ModeHTTP
)

// ParseMode converts a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStream, ModeNetwork:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown worker mode %q (want %s or %s)", s, ModeStream, ModeNetwork)
	}
}

// Worker module entry points.
const (
	streamModule  = "enhanced_mcp_server.core.server"
	networkModule = "enhanced_mcp_server.main"
)

// Invocation is the executable and arguments used to launch a worker.
type Invocation struct {
	Path string
	Args []string
}

// DefaultInvocation returns the platform-appropriate worker command for mode.
// goos is normally runtime.GOOS.
func DefaultInvocation(mode Mode, goos string) Invocation {
	path := "python3"
	if goos == "windows" {
		path = "python"
	}
	if mode == ModeNetwork {
		return Invocation{Path: path, Args: []string{"-m", networkModule, "--http"}}
	}
	return Invocation{Path: path, Args: []string{"-m", streamModule}}
}

// InvocationFromConfig applies the worker.command / worker.args overrides on
// top of the default invocation for mode.
func InvocationFromConfig(cfg config.WorkerConfig, mode Mode) Invocation {
	inv := DefaultInvocation(mode, runtime.GOOS)
	if cfg.Command != "" {
		inv.Path = cfg.Command
	}
	if len(cfg.Args) > 0 {
		inv.Args = append([]string(nil), cfg.Args...)
	}
	return inv
}

func (i Invocation) String() string {
	return fmt.Sprintf("%s %v", i.Path, i.Args)
}
