package sshsession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/netshell-labs/netshell/internal/config"
	"github.com/netshell-labs/netshell/internal/netdev"
	"github.com/netshell-labs/netshell/internal/sshchan"
	"github.com/netshell-labs/netshell/internal/testdevice"
)

func testSettings() config.Settings {
	return config.Settings{
		SessionTTL:     2 * time.Hour,
		ReapInterval:   time.Minute,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 3 * time.Second,
		RawQuiescence:  300 * time.Millisecond,
	}
}

func linuxParams(srv *testdevice.Server) CreateParams {
	return CreateParams{
		DeviceType: "linux",
		Host:       srv.Host,
		Port:       srv.Port,
		Username:   testdevice.Username,
		Password:   testdevice.Password,
	}
}

func TestCreateAndGet(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())
	defer m.CloseAll()

	s, err := m.Create(context.Background(), linuxParams(srv))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == "" {
		t.Fatal("empty session id")
	}

	got, err := m.Get(s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != s {
		t.Error("Get returned a different session")
	}

	list := m.List()
	if len(list) != 1 {
		t.Fatalf("List has %d entries, want 1", len(list))
	}
	if list[0].SessionID != s.ID || list[0].DeviceType != "linux" || list[0].Context != "shell" {
		t.Errorf("List entry = %+v", list[0])
	}
}

func TestLabelBecomesID(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())
	defer m.CloseAll()

	p := linuxParams(srv)
	p.Label = "primary"
	first, err := m.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.ID != "primary" {
		t.Errorf("free label should become the id, got %q", first.ID)
	}

	// A taken label is not an error; the second session gets a generated id
	// and the first stays untouched.
	second, err := m.Create(context.Background(), p)
	if err != nil {
		t.Fatalf("Create with taken label: %v", err)
	}
	if second.ID == "primary" {
		t.Error("taken label reused as id")
	}
	if len(second.ID) != 8 {
		t.Errorf("generated id %q, want 8 chars", second.ID)
	}
	if _, err := m.Get("primary"); err != nil {
		t.Errorf("first session disturbed: %v", err)
	}
}

func TestCreateAuthFailureLeavesNoSession(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())

	p := linuxParams(srv)
	p.Password = "not-the-password"
	_, err := m.Create(context.Background(), p)
	var cerr *sshchan.ConnectError
	if !errors.As(err, &cerr) || cerr.Reason != sshchan.ReasonAuthFailed {
		t.Fatalf("expected auth_failed ConnectError, got %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("failed connect left a session registered")
	}
}

func TestCreateSetupTimeoutLeavesNoSession(t *testing.T) {
	// A host that answers SSH but never prints a shell prompt: setup must
	// time out and tear the channel down.
	srv := testdevice.Start(t, func(tm *testdevice.Term) {
		tm.Println("motd, but no prompt ever follows")
		for {
			if _, err := tm.ReadLine(); err != nil {
				return
			}
		}
	})
	m := NewManager(testSettings())

	p := linuxParams(srv)
	p.Timeout = time.Second
	_, err := m.Create(context.Background(), p)
	var cerr *sshchan.ConnectError
	if !errors.As(err, &cerr) || cerr.Reason != sshchan.ReasonTimeout {
		t.Fatalf("expected timeout ConnectError, got %v", err)
	}
	if len(m.List()) != 0 {
		t.Error("failed setup left a session registered")
	}
}

func TestCreateUnknownDeviceType(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())

	p := linuxParams(srv)
	p.DeviceType = "ios-xr"
	if _, err := m.Create(context.Background(), p); err == nil {
		t.Fatal("expected error for unknown device type")
	}
	if len(m.List()) != 0 {
		t.Error("unknown device type left a session registered")
	}
}

func TestDisconnect(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())

	s, err := m.Create(context.Background(), linuxParams(srv))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := m.Disconnect(s.ID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	var nf *NotFoundError
	if _, err := m.Get(s.ID); !errors.As(err, &nf) {
		t.Errorf("Get after disconnect = %v, want NotFoundError", err)
	}
	if err := m.Disconnect(s.ID); !errors.As(err, &nf) {
		t.Errorf("second Disconnect = %v, want NotFoundError", err)
	}
}

func TestWithSessionNotFound(t *testing.T) {
	m := NewManager(testSettings())
	var nf *NotFoundError
	err := m.WithSession("nope", func(netdev.Driver) error { return nil })
	if !errors.As(err, &nf) {
		t.Fatalf("WithSession = %v, want NotFoundError", err)
	}
}

func TestWithSessionSerializes(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())
	defer m.CloseAll()

	s, err := m.Create(context.Background(), linuxParams(srv))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var inFlight, overlapped int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.WithSession(s.ID, func(d netdev.Driver) error {
				if atomic.AddInt32(&inFlight, 1) > 1 {
					atomic.StoreInt32(&overlapped, 1)
				}
				defer atomic.AddInt32(&inFlight, -1)
				_, err := d.Execute(context.Background(), "slow")
				return err
			})
			if err != nil {
				t.Errorf("WithSession: %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&overlapped) != 0 {
		t.Error("observed concurrent commands on one session")
	}
}

func TestWithSessionTouchesAndCaches(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())
	defer m.CloseAll()

	s, err := m.Create(context.Background(), linuxParams(srv))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := s.LastUsed()

	time.Sleep(10 * time.Millisecond)
	if err := m.WithSession(s.ID, func(d netdev.Driver) error {
		_, err := d.Execute(context.Background(), "echo hi")
		return err
	}); err != nil {
		t.Fatalf("WithSession: %v", err)
	}

	if !s.LastUsed().After(before) {
		t.Error("dispatch did not refresh the idle clock")
	}
	if m.List()[0].Context != "shell" {
		t.Errorf("cached context = %q", m.List()[0].Context)
	}
}

func TestReapExpired(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())

	s, err := m.Create(context.Background(), linuxParams(srv))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Backdate the idle clock past the TTL.
	s.metaMu.Lock()
	s.lastUsed = time.Now().Add(-3 * time.Hour)
	s.metaMu.Unlock()

	m.reap()

	var nf *NotFoundError
	if _, err := m.Get(s.ID); !errors.As(err, &nf) {
		t.Errorf("expired session survived the reaper: %v", err)
	}
}

func TestReapSkipsBusySession(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())
	defer m.CloseAll()

	s, err := m.Create(context.Background(), linuxParams(srv))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.metaMu.Lock()
	s.lastUsed = time.Now().Add(-3 * time.Hour)
	s.metaMu.Unlock()

	// Hold the busy lock as an in-flight command would.
	s.busy.Lock()
	m.reap()
	if _, err := m.Get(s.ID); err != nil {
		t.Fatalf("busy session reaped: %v", err)
	}
	s.busy.Unlock()

	// Idle again on the next scan: now it goes.
	m.reap()
	var nf *NotFoundError
	if _, err := m.Get(s.ID); !errors.As(err, &nf) {
		t.Errorf("expired session survived a later scan: %v", err)
	}
}

func TestReapRechecksExpiryUnderLock(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())
	defer m.CloseAll()

	s, err := m.Create(context.Background(), linuxParams(srv))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The session looked expired when the scan picked it as a candidate,
	// but a command ran to completion before the lock was taken.
	s.metaMu.Lock()
	s.lastUsed = time.Now().Add(-3 * time.Hour)
	s.metaMu.Unlock()
	s.Touch()

	if m.reapCandidate(s) {
		t.Error("freshly used session was reaped")
	}
	if _, err := m.Get(s.ID); err != nil {
		t.Errorf("session gone after skipped reap: %v", err)
	}
}

func TestReaperSchedule(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	cfg := testSettings()
	cfg.ReapInterval = time.Second
	m := NewManager(cfg)

	s, err := m.Create(context.Background(), linuxParams(srv))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.metaMu.Lock()
	s.lastUsed = time.Now().Add(-3 * time.Hour)
	s.metaMu.Unlock()

	if err := m.StartReaper(); err != nil {
		t.Fatalf("StartReaper: %v", err)
	}
	defer m.StopReaper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	backoff := retry.NewConstant(200 * time.Millisecond)
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := m.Get(s.ID); err == nil {
			return retry.RetryableError(errors.New("session still registered"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("scheduled reaper never collected the session: %v", err)
	}
}

func TestCloseAll(t *testing.T) {
	srv := testdevice.Start(t, testdevice.LinuxShell())
	m := NewManager(testSettings())

	for i := 0; i < 3; i++ {
		if _, err := m.Create(context.Background(), linuxParams(srv)); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	m.CloseAll()
	if got := len(m.List()); got != 0 {
		t.Errorf("%d sessions left after CloseAll", got)
	}
}
