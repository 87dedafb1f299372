package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.SessionTTL != 2*time.Hour {
		t.Errorf("expected default TTL 2h, got %s", s.SessionTTL)
	}
	if s.ConnectTimeout != 30*time.Second {
		t.Errorf("expected default connect timeout 30s, got %s", s.ConnectTimeout)
	}
	if s.RawQuiescence != time.Second {
		t.Errorf("expected default raw quiescence 1s, got %s", s.RawQuiescence)
	}
	if s.LogLevel != "info" {
		t.Errorf("expected default log level info, got %q", s.LogLevel)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("NETSHELL_SESSION_TTL", "15m")
	t.Setenv("NETSHELL_COMMAND_TIMEOUT", "5s")

	s, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.SessionTTL != 15*time.Minute {
		t.Errorf("expected TTL 15m, got %s", s.SessionTTL)
	}
	if s.CommandTimeout != 5*time.Second {
		t.Errorf("expected command timeout 5s, got %s", s.CommandTimeout)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("NETSHELL_SESSION_TTL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
