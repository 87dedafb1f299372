// Package sshsession keeps the registry of live device sessions: creation,
// lookup, serialized command dispatch, idle reaping, and teardown. Everything
// here is in-memory; a process restart forgets all sessions.
package sshsession

import (
	"sync"
	"time"

	"github.com/netshell-labs/netshell/internal/netdev"
	"github.com/netshell-labs/netshell/internal/sshchan"
)

// Session is one connected device: an exclusively owned channel, the driver
// speaking its CLI, and bookkeeping for listing and reaping.
//
// Two locks with distinct jobs: busy serializes command dispatch (held for
// the whole duration of a remote command), metaMu guards the cheap metadata
// snapshot so List and the reaper never wait behind a running command.
type Session struct {
	ID         string
	DeviceType string
	Label      string
	Host       string
	Username   string
	CreatedAt  time.Time
	TTL        time.Duration

	Channel *sshchan.Channel
	Driver  netdev.Driver

	busy sync.Mutex

	metaMu   sync.Mutex
	lastUsed time.Time
	context  string

	closeOnce sync.Once
}

// Summary is the list_sessions view of a session, all cached metadata.
type Summary struct {
	SessionID  string    `json:"session_id"`
	DeviceType string    `json:"device_type"`
	Label      string    `json:"label,omitempty"`
	Host       string    `json:"host"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	Context    string    `json:"context"`
}

// Touch refreshes the idle clock. Called on every dispatch attempt, success
// or failure: a session someone keeps poking is not idle.
func (s *Session) Touch() {
	s.metaMu.Lock()
	s.lastUsed = time.Now()
	s.metaMu.Unlock()
}

// LastUsed returns the last dispatch time.
func (s *Session) LastUsed() time.Time {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return s.lastUsed
}

// setContext caches the driver's context path for list snapshots.
func (s *Session) setContext(ctx string) {
	s.metaMu.Lock()
	s.context = ctx
	s.metaMu.Unlock()
}

// summary snapshots the session metadata without touching the busy lock.
func (s *Session) summary() Summary {
	s.metaMu.Lock()
	defer s.metaMu.Unlock()
	return Summary{
		SessionID:  s.ID,
		DeviceType: s.DeviceType,
		Label:      s.Label,
		Host:       s.Host,
		Username:   s.Username,
		CreatedAt:  s.CreatedAt,
		LastUsedAt: s.lastUsed,
		Context:    s.context,
	}
}

// close tears down the transport. Safe to call more than once; network
// errors during teardown are swallowed, the session is gone either way.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.Channel != nil {
			_ = s.Channel.Close()
		}
	})
}
