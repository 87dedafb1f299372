// Package netdev drives interactive device CLIs over a transport channel.
//
// Two drivers exist: Linux (bash-style shell) and Nokia SR OS (MD-CLI).
// Both share the conversation engine below, which owns the one channel, the
// active prompt matcher, and the read-until-prompt loop. A driver instance
// belongs to exactly one session and relies on the session's busy lock for
// mutual exclusion; nothing here is safe for concurrent use.
package netdev

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/netshell-labs/netshell/internal/prompt"
	"github.com/netshell-labs/netshell/internal/sshchan"
)

// Driver is the capability set shared by all device types.
type Driver interface {
	// DeviceType returns "linux" or "sros".
	DeviceType() string
	// Setup runs connect-time initialization: prompt synchronization and
	// pagination disable. Called exactly once, before the session is
	// registered.
	Setup(ctx context.Context) error
	// Execute sends one command and waits for prompt completion.
	Execute(ctx context.Context, command string) (string, error)
	// ExecuteBatch runs commands sequentially in the same shell context.
	// A failing command does not abort the rest.
	ExecuteBatch(ctx context.Context, commands []string) []BatchResult
	// SendRaw writes text verbatim (no newline, no completion wait) and
	// returns whatever output accumulates within the quiescence window.
	// A zero wait means the configured default window.
	SendRaw(ctx context.Context, text string, wait time.Duration) (string, error)
	// LastContext returns the cached CLI context from the last completed
	// operation. Never touches the device.
	LastContext() string
}

// BatchResult is the outcome of one command within a batch.
type BatchResult struct {
	Command string `json:"command"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// Options tune the shared conversation engine.
type Options struct {
	// CommandTimeout is the default wait for a terminal prompt.
	CommandTimeout time.Duration
	// RawQuiescence is how long SendRaw collects output before returning.
	RawQuiescence time.Duration
}

func (o *Options) withDefaults() {
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 60 * time.Second
	}
	if o.RawQuiescence <= 0 {
		o.RawQuiescence = time.Second
	}
}

// pollInterval bounds how long the read loop sleeps between checks when no
// output arrives, so context cancellation is noticed promptly.
const pollInterval = time.Second

// tailBytes is how much buffer tail a timeout error carries.
const tailBytes = 512

// conversation is the request/response engine over one interactive shell.
type conversation struct {
	ch      *sshchan.Channel
	matcher *prompt.Matcher
	opts    Options

	// pending holds output that arrived beyond the last completed command,
	// to be consumed by the next read or drained by SendRaw.
	pending strings.Builder
}

func newConversation(ch *sshchan.Channel, p prompt.Profile, opts Options) *conversation {
	opts.withDefaults()
	return &conversation{
		ch:      ch,
		matcher: prompt.NewMatcher(p),
		opts:    opts,
	}
}

// setProfile switches the active prompt grammar (Linux prompt pinning).
func (c *conversation) setProfile(p prompt.Profile) {
	c.matcher = prompt.NewMatcher(p)
}

// send writes text to the channel verbatim.
func (c *conversation) send(text string) error {
	return c.ch.WriteString(text)
}

// readUntilPrompt accumulates output until a terminal prompt appears or the
// deadline passes. Pagination stops are answered with the profile's
// continuation keystroke. On timeout the partial output is kept pending so a
// later read can resynchronize.
func (c *conversation) readUntilPrompt(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = c.opts.CommandTimeout
	}
	start := time.Now()
	deadline := start.Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	buf := c.pending.String()
	c.pending.Reset()

	for {
		if c.matcher.Done(buf) {
			return buf, nil
		}
		if c.matcher.More(buf) {
			if err := c.send(c.matcher.MoreResponse()); err != nil {
				return "", fmt.Errorf("continue pagination: %w", err)
			}
			buf = c.matcher.StripMore(buf)
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.pending.WriteString(buf)
			return "", &CommandTimeoutError{Elapsed: time.Since(start), Tail: tail(buf)}
		}

		wait := remaining
		if wait > pollInterval {
			wait = pollInterval
		}
		timer := time.NewTimer(wait)
		select {
		case chunk, ok := <-c.ch.Chunks():
			timer.Stop()
			if !ok {
				return "", fmt.Errorf("channel closed while waiting for prompt")
			}
			buf += string(chunk)
		case <-ctx.Done():
			timer.Stop()
			c.pending.WriteString(buf)
			return "", &CommandTimeoutError{Elapsed: time.Since(start), Tail: tail(buf)}
		case <-timer.C:
		}
	}
}

// exchange submits one command line and waits for the prompt. It returns both
// the cleaned response and the raw buffer (the raw tail carries the prompt,
// which SR OS context tracking needs).
func (c *conversation) exchange(ctx context.Context, command string, timeout time.Duration) (cleaned, raw string, err error) {
	if err := c.send(command + "\n"); err != nil {
		return "", "", err
	}
	raw, err = c.readUntilPrompt(ctx, timeout)
	if err != nil {
		if terr, ok := err.(*CommandTimeoutError); ok {
			terr.Command = command
		}
		return "", "", err
	}
	return c.matcher.Clean(raw, command), raw, nil
}

// drainRaw implements the SendRaw contract: write verbatim, then collect
// output until the quiescence window closes.
func (c *conversation) drainRaw(ctx context.Context, text string, wait time.Duration) (string, error) {
	if err := c.send(text); err != nil {
		return "", err
	}

	buf := c.pending.String()
	c.pending.Reset()

	if wait <= 0 {
		wait = c.opts.RawQuiescence
	}
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return buf, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case chunk, ok := <-c.ch.Chunks():
			timer.Stop()
			if !ok {
				return buf, nil
			}
			buf += string(chunk)
		case <-ctx.Done():
			timer.Stop()
			return buf, nil
		case <-timer.C:
			return buf, nil
		}
	}
}

func tail(s string) string {
	if len(s) <= tailBytes {
		return s
	}
	return s[len(s)-tailBytes:]
}
