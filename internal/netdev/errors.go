package netdev

import (
	"fmt"
	"time"
)

// CommandTimeoutError means no terminal prompt appeared within the window.
// The session itself stays usable; only this command attempt is lost.
type CommandTimeoutError struct {
	Command string
	Elapsed time.Duration
	// Tail is the end of whatever output had accumulated, for diagnosis.
	Tail string
}

func (e *CommandTimeoutError) Error() string {
	if e.Tail == "" {
		return fmt.Sprintf("command timed out after %s waiting for prompt", e.Elapsed.Round(time.Millisecond))
	}
	return fmt.Sprintf("command timed out after %s waiting for prompt; buffer tail: %q",
		e.Elapsed.Round(time.Millisecond), e.Tail)
}

// WrongContextError means an operational-only command was invoked while the
// CLI was in a different context.
type WrongContextError struct {
	Context string
}

func (e *WrongContextError) Error() string {
	return fmt.Sprintf("command requires operational context, current context is %q", e.Context)
}

// DriverDesyncError means the driver could not re-establish a known CLI
// context. The session is permanently unusable: every subsequent operation
// fails fast with this error until the session is disconnected.
type DriverDesyncError struct {
	Reason string
}

func (e *DriverDesyncError) Error() string {
	return fmt.Sprintf("session desynchronized (%s); disconnect and reconnect", e.Reason)
}

// RollbackError means the device refused the rollback, typically because no
// checkpoint exists at the requested depth.
type RollbackError struct {
	Steps  int
	Output string
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback %d failed: %s", e.Steps, e.Output)
}
