package interp

import (
	"fmt"
	"os"
	"strings"
	"syscall"
)

// ParseSignal maps a config name such as "SIGTERM" or "quit" to a signal.
// An empty name means SIGTERM.
func ParseSignal(name string) (os.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "SIG")
	switch n {
	case "", "TERM":
		return syscall.SIGTERM, nil
	case "QUIT":
		return syscall.SIGQUIT, nil
	case "INT":
		return syscall.SIGINT, nil
	case "HUP":
		return syscall.SIGHUP, nil
	case "KILL":
		return os.Kill, nil
	default:
		return nil, fmt.Errorf("interpreter.kill_signal: unsupported signal %q", name)
	}
}
