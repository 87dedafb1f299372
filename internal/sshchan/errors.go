package sshchan

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ConnectReason classifies why establishing a transport channel failed.
type ConnectReason string

const (
	ReasonAuthFailed      ConnectReason = "auth_failed"
	ReasonUnreachable     ConnectReason = "unreachable"
	ReasonTimeout         ConnectReason = "timeout"
	ReasonHostKeyRejected ConnectReason = "host_key_rejected"
)

// ConnectError is returned for any failure to open a transport channel.
// The message is pre-redacted: authentication secrets never appear in it.
type ConnectError struct {
	Reason ConnectReason
	Msg    string
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect failed (%s): %s", e.Reason, e.Msg)
}

// classifyDial maps a raw dial/handshake error onto a ConnectReason.
// redact removes any echoed secret from the stored message.
func classifyDial(err error, redact func(string) string) *ConnectError {
	msg := redact(err.Error())

	reason := ReasonUnreachable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = ReasonTimeout
	case isNetTimeout(err):
		reason = ReasonTimeout
	case strings.Contains(msg, "unable to authenticate"),
		strings.Contains(msg, "no supported methods remain"),
		strings.Contains(msg, "permission denied"):
		reason = ReasonAuthFailed
	case strings.Contains(msg, "host key"):
		reason = ReasonHostKeyRejected
	}

	return &ConnectError{Reason: reason, Msg: msg}
}

func isNetTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
