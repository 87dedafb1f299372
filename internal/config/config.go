package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds all runtime configuration, loaded from NETSHELL_* environment
// variables. Durations are plain Go duration strings ("2h", "30s").
type Settings struct {
	// SessionTTL is how long an idle session stays alive before the reaper
	// closes it.
	SessionTTL time.Duration `envconfig:"SESSION_TTL" default:"2h"`
	// ReapInterval is how often the reaper scans for expired sessions.
	ReapInterval time.Duration `envconfig:"REAP_INTERVAL" default:"1m"`

	// ConnectTimeout bounds the SSH dial plus the device setup handshake.
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"30s"`
	// CommandTimeout is the default wait for a terminal prompt after a command.
	CommandTimeout time.Duration `envconfig:"COMMAND_TIMEOUT" default:"60s"`
	// RawQuiescence is how long send_raw collects output before returning.
	// Raw sends have no prompt to wait for, so this window is all we get.
	RawQuiescence time.Duration `envconfig:"RAW_QUIESCENCE" default:"1s"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`
}

// Load reads settings from the environment under the NETSHELL prefix.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("NETSHELL", &s); err != nil {
		return Settings{}, fmt.Errorf("load config: %w", err)
	}
	return s, nil
}
