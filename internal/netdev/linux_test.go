package netdev_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/netshell-labs/netshell/internal/netdev"
)

func TestLinuxExecute(t *testing.T) {
	d := setupLinux(t)

	out, err := d.Execute(context.Background(), "echo hello")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "hello" {
		t.Errorf("Execute = %q, want %q", out, "hello")
	}
}

func TestLinuxExecuteUnknownCommand(t *testing.T) {
	d := setupLinux(t)

	// A failing command is still a successful exchange; stderr text comes
	// back as output, exit codes are invisible.
	out, err := d.Execute(context.Background(), "frobnicate")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "command not found") {
		t.Errorf("Execute = %q, want shell error text", out)
	}
}

func TestLinuxBatchSharesShellState(t *testing.T) {
	d := setupLinux(t)

	results := d.ExecuteBatch(context.Background(), []string{
		"cd /var/log",
		"pwd",
	})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for _, r := range results {
		if r.Error != "" {
			t.Errorf("command %q failed: %s", r.Command, r.Error)
		}
	}
	if results[1].Output != "/var/log" {
		t.Errorf("pwd = %q, want /var/log (cwd must persist across the batch)", results[1].Output)
	}
}

func TestLinuxBatchContinuesPastFailure(t *testing.T) {
	d := setupLinux(t)

	results := d.ExecuteBatch(context.Background(), []string{
		"false",
		"echo still-here",
	})
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[1].Output != "still-here" {
		t.Errorf("second command = %q, batch must not abort", results[1].Output)
	}
}

func TestLinuxExecuteTimeout(t *testing.T) {
	d := setupLinux(t)

	_, err := d.Execute(context.Background(), "hang")
	var terr *netdev.CommandTimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected CommandTimeoutError, got %v", err)
	}
	if terr.Command != "hang" {
		t.Errorf("timeout names command %q, want hang", terr.Command)
	}

	// The session stays usable: the next exchange resynchronizes on the
	// next prompt, even if stale output bleeds into it.
	out, err := d.Execute(context.Background(), "echo recovered")
	if err != nil {
		t.Fatalf("Execute after timeout: %v", err)
	}
	if !strings.Contains(out, "recovered") {
		t.Errorf("Execute after timeout = %q, want output containing %q", out, "recovered")
	}
}

func TestLinuxSendRaw(t *testing.T) {
	d := setupLinux(t)

	out, err := d.SendRaw(context.Background(), "echo raw-probe\n", 0)
	if err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	// Raw output is unprocessed: echo, response, and the next prompt all
	// arrive as-is within the quiescence window.
	if !strings.Contains(out, "raw-probe") {
		t.Errorf("SendRaw = %q, want raw echo and output", out)
	}
}

func TestLinuxSendRawWaitOverride(t *testing.T) {
	d := setupLinux(t)

	// The scripted "slow" command answers after 300ms. A shorter window
	// closes before the answer; a longer one collects it.
	out, err := d.SendRaw(context.Background(), "slow\n", 100*time.Millisecond)
	if err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	if strings.Contains(out, "done") {
		t.Errorf("100ms window caught a 300ms answer: %q", out)
	}

	out, err = d.SendRaw(context.Background(), "slow\n", 900*time.Millisecond)
	if err != nil {
		t.Fatalf("SendRaw: %v", err)
	}
	if !strings.Contains(out, "done") {
		t.Errorf("900ms window missed the answer: %q", out)
	}
}

func TestLinuxOSInfo(t *testing.T) {
	d := setupLinux(t)

	info, err := d.OSInfo(context.Background())
	if err != nil {
		t.Fatalf("OSInfo: %v", err)
	}
	if info.Hostname != "lab-host" {
		t.Errorf("Hostname = %q", info.Hostname)
	}
	if !strings.Contains(info.Uname, "Linux lab-host") {
		t.Errorf("Uname = %q", info.Uname)
	}
	if !strings.Contains(info.OSRelease, "Debian") {
		t.Errorf("OSRelease = %q", info.OSRelease)
	}
}

func TestLinuxLastContext(t *testing.T) {
	d := setupLinux(t)
	if got := d.LastContext(); got != "shell" {
		t.Errorf("LastContext = %q, want shell", got)
	}
}
