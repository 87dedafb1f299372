package netdev_test

import (
	"context"
	"testing"
	"time"

	"github.com/netshell-labs/netshell/internal/netdev"
	"github.com/netshell-labs/netshell/internal/sshchan"
	"github.com/netshell-labs/netshell/internal/testdevice"
)

// dialDevice starts a scripted device and opens a channel to it. The channel
// is torn down with the test.
func dialDevice(t *testing.T, script testdevice.Script) *sshchan.Channel {
	t.Helper()
	srv := testdevice.Start(t, script)

	ch, err := sshchan.Dial(context.Background(), sshchan.Params{
		Host:     srv.Host,
		Port:     srv.Port,
		Username: testdevice.Username,
		Password: testdevice.Password,
		Timeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

// testOptions keep timeout tests fast; production defaults are minutes.
func testOptions() netdev.Options {
	return netdev.Options{
		CommandTimeout: 3 * time.Second,
		RawQuiescence:  400 * time.Millisecond,
	}
}

func setupLinux(t *testing.T) *netdev.LinuxDriver {
	t.Helper()
	d := netdev.NewLinux(dialDevice(t, testdevice.LinuxShell()), testOptions())
	if err := d.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return d
}

func setupSROS(t *testing.T) *netdev.SROSDriver {
	t.Helper()
	d := netdev.NewSROS(dialDevice(t, testdevice.SROSShell()), testOptions())
	if err := d.Setup(context.Background()); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	return d
}
