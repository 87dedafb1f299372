package sshsession

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/netshell-labs/netshell/internal/config"
	"github.com/netshell-labs/netshell/internal/logging"
	"github.com/netshell-labs/netshell/internal/logutil"
	"github.com/netshell-labs/netshell/internal/netdev"
	"github.com/netshell-labs/netshell/internal/sshchan"
)

// Manager owns the session registry. All registry mutation happens under mu;
// command dispatch against an individual session happens under that
// session's busy lock, never under mu.
type Manager struct {
	cfg config.Settings

	mu       sync.RWMutex
	sessions map[string]*Session

	cron *cron.Cron
}

// NewManager creates an empty registry. Call StartReaper to begin idle
// collection.
func NewManager(cfg config.Settings) *Manager {
	return &Manager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		cron:     cron.New(),
	}
}

// CreateParams describes one connect request. Credentials live only for the
// duration of Create; nothing here is retained or written anywhere.
type CreateParams struct {
	DeviceType string // "linux" or "sros"
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey []byte
	// Label, when free, becomes the session id. A label already in use is
	// not an error; the session gets a generated id instead.
	Label string
	// Timeout bounds dial plus device setup. Zero means the configured
	// connect timeout.
	Timeout time.Duration
}

// Create dials the device, runs connect-time driver setup, and registers the
// session. Any failure before registration tears the channel down and leaves
// no trace: there are no partially set-up sessions in the registry.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Session, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = m.cfg.ConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch, err := sshchan.Dial(ctx, sshchan.Params{
		Host:       p.Host,
		Port:       p.Port,
		Username:   p.Username,
		Password:   p.Password,
		PrivateKey: p.PrivateKey,
		Timeout:    timeout,
	})
	if err != nil {
		return nil, err
	}

	var driver netdev.Driver
	opts := netdev.Options{
		CommandTimeout: m.cfg.CommandTimeout,
		RawQuiescence:  m.cfg.RawQuiescence,
	}
	switch p.DeviceType {
	case "linux":
		driver = netdev.NewLinux(ch, opts)
	case "sros":
		driver = netdev.NewSROS(ch, opts)
	default:
		_ = ch.Close()
		return nil, fmt.Errorf("unknown device_type %q (want linux or sros)", p.DeviceType)
	}

	if err := driver.Setup(ctx); err != nil {
		_ = ch.Close()
		var terr *netdev.CommandTimeoutError
		if errors.As(err, &terr) || ctx.Err() != nil {
			return nil, &sshchan.ConnectError{
				Reason: sshchan.ReasonTimeout,
				Msg:    fmt.Sprintf("device setup did not complete within %s", timeout),
			}
		}
		return nil, fmt.Errorf("device setup: %w", err)
	}

	s := &Session{
		DeviceType: p.DeviceType,
		Label:      p.Label,
		Host:       p.Host,
		Username:   p.Username,
		CreatedAt:  time.Now(),
		TTL:        m.cfg.SessionTTL,
		Channel:    ch,
		Driver:     driver,
		lastUsed:   time.Now(),
		context:    driver.LastContext(),
	}

	m.mu.Lock()
	s.ID = m.assignID(p.Label)
	m.sessions[s.ID] = s
	m.mu.Unlock()

	log := logging.Component("sshsession")
	log.Info().
		Str("session_id", s.ID).
		Str("device_type", s.DeviceType).
		Str("host", logutil.Sanitize(p.Host)).
		Str("username", logutil.Sanitize(p.Username)).
		Msg("session connected")
	return s, nil
}

// assignID picks the label when free, a generated id otherwise. Caller holds
// the write lock.
func (m *Manager) assignID(label string) string {
	if label != "" {
		if _, taken := m.sessions[label]; !taken {
			return label
		}
	}
	for {
		id := uuid.NewString()[:8]
		if _, taken := m.sessions[id]; !taken {
			return id
		}
	}
}

// Get returns the session for id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return s, nil
}

// Disconnect removes the session from the registry immediately — no new
// dispatches can reach it — then waits for any in-flight command before
// closing the transport. A second call finds nothing and reports NotFound.
func (m *Manager) Disconnect(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return &NotFoundError{ID: id}
	}

	s.busy.Lock()
	s.close()
	s.busy.Unlock()

	log := logging.Component("sshsession")
	log.Info().Str("session_id", id).Msg("session disconnected")
	return nil
}

// List snapshots all sessions, ordered by creation time. Reads cached
// metadata only; a session stuck in a long command still shows up instantly.
func (m *Manager) List() []Summary {
	m.mu.RLock()
	out := make([]Summary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.summary())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// WithSession is the one serialization point for command dispatch: it looks
// the session up, takes its busy lock for the duration of fn, and refreshes
// the idle clock and cached context on the way out. At most one fn runs per
// session at a time; concurrent callers queue on the busy lock.
func (m *Manager) WithSession(id string, fn func(netdev.Driver) error) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}

	s.busy.Lock()
	defer s.busy.Unlock()

	s.Touch()
	ferr := fn(s.Driver)
	s.Touch()
	s.setContext(s.Driver.LastContext())
	return ferr
}

// StartReaper begins periodic idle-session collection.
func (m *Manager) StartReaper() error {
	spec := fmt.Sprintf("@every %s", m.cfg.ReapInterval)
	if _, err := m.cron.AddFunc(spec, m.reap); err != nil {
		return fmt.Errorf("schedule reaper: %w", err)
	}
	m.cron.Start()
	return nil
}

// StopReaper stops the cron scheduler. Running reap jobs finish.
func (m *Manager) StopReaper() {
	ctx := m.cron.Stop()
	<-ctx.Done()
}

// reap disconnects sessions idle beyond their TTL. A busy session is never
// touched; its TTL clock restarts when the in-flight command finishes, and a
// later scan gets it if it goes idle again.
func (m *Manager) reap() {
	now := time.Now()

	m.mu.RLock()
	var expired []*Session
	for _, s := range m.sessions {
		if now.Sub(s.LastUsed()) > s.TTL {
			expired = append(expired, s)
		}
	}
	m.mu.RUnlock()

	log := logging.Component("sshsession")
	for _, s := range expired {
		if m.reapCandidate(s) {
			log.Info().Str("session_id", s.ID).Msg("idle session reaped")
		}
	}
}

// reapCandidate retires one expiry candidate. A command can start and finish
// between the scan and the lock acquisition, refreshing the idle clock, so
// expiry is judged again under the busy lock before anything is torn down.
func (m *Manager) reapCandidate(s *Session) bool {
	if !s.busy.TryLock() {
		return false
	}
	defer s.busy.Unlock()

	if time.Since(s.LastUsed()) <= s.TTL {
		return false
	}

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()
	s.close()
	return true
}

// CloseAll tears down every session. Shutdown path only.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
