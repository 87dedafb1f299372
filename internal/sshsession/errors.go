package sshsession

import "fmt"

// NotFoundError reports an operation against a session id that is not (or no
// longer) registered. Disconnected and reaped sessions fail the same way.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("session %q not found; use ssh_connect first", e.ID)
}
