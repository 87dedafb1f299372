package netdev

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/netshell-labs/netshell/internal/logging"
	"github.com/netshell-labs/netshell/internal/logutil"
	"github.com/netshell-labs/netshell/internal/prompt"
	"github.com/netshell-labs/netshell/internal/sshchan"
)

// Setup phase timeouts, shorter than command timeouts because a shell that
// cannot print a prompt quickly is not going to.
const (
	linuxInitialPromptWait = 20 * time.Second
	linuxPinnedPromptWait  = 10 * time.Second
	linuxEnvSetupWait      = 5 * time.Second
)

// LinuxDriver drives a bash-style shell. After Setup the remote PS1 is pinned
// to a sentinel, so command completion detection is exact rather than a guess
// against whatever prompt the account ships with.
type LinuxDriver struct {
	conv     *conversation
	sentinel string
}

// NewLinux creates a Linux driver bound to the given channel. Call Setup
// before issuing commands.
func NewLinux(ch *sshchan.Channel, opts Options) *LinuxDriver {
	return &LinuxDriver{
		conv:     newConversation(ch, prompt.Linux(), opts),
		sentinel: prompt.DefaultLinuxSentinel,
	}
}

func (d *LinuxDriver) DeviceType() string { return "linux" }

// LastContext is constant for Linux: the shell has no nested CLI contexts.
func (d *LinuxDriver) LastContext() string { return "shell" }

// Setup waits for whatever prompt the host greets us with, pins PS1 to the
// sentinel, and strips the environment down for machine parsing.
func (d *LinuxDriver) Setup(ctx context.Context) error {
	if _, err := d.conv.readUntilPrompt(ctx, linuxInitialPromptWait); err != nil {
		return fmt.Errorf("initial prompt: %w", err)
	}

	if err := d.conv.send("export PS1='" + d.sentinel + "'\n"); err != nil {
		return fmt.Errorf("pin prompt: %w", err)
	}
	d.conv.setProfile(prompt.LinuxPinned(d.sentinel))
	if _, err := d.conv.readUntilPrompt(ctx, linuxPinnedPromptWait); err != nil {
		return fmt.Errorf("pinned prompt: %w", err)
	}

	if _, _, err := d.conv.exchange(ctx, "export TERM=dumb; unset HISTFILE", linuxEnvSetupWait); err != nil {
		return fmt.Errorf("environment setup: %w", err)
	}

	log := logging.Component("netdev")
	log.Debug().Str("device", "linux").Msg("shell prompt pinned")
	return nil
}

// Execute runs one shell command and returns its output with the echo and
// trailing prompt stripped. Exit codes are not interpreted.
func (d *LinuxDriver) Execute(ctx context.Context, command string) (string, error) {
	out, _, err := d.conv.exchange(ctx, command, 0)
	return out, err
}

// ExecuteBatch runs commands one after another in the same shell, so
// environment and cwd changes persist across the batch. Each result stands
// alone: a failure is recorded and the next command still runs.
func (d *LinuxDriver) ExecuteBatch(ctx context.Context, commands []string) []BatchResult {
	results := make([]BatchResult, 0, len(commands))
	for _, cmd := range commands {
		out, err := d.Execute(ctx, cmd)
		r := BatchResult{Command: cmd, Output: out}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
	}
	return results
}

// SendRaw writes text to the shell verbatim — no newline appended, no prompt
// wait. Escape hatch for interactive sub-programs and control sequences.
func (d *LinuxDriver) SendRaw(ctx context.Context, text string, wait time.Duration) (string, error) {
	return d.conv.drainRaw(ctx, text, wait)
}

// OSInfo is the aggregate returned by the linux_os_info operation.
type OSInfo struct {
	Hostname  string `json:"hostname"`
	Uname     string `json:"uname"`
	OSRelease string `json:"os_release"`
}

// OSInfo collects basic host identification through the regular execute path.
// A missing /etc/os-release is reported as "N/A", not an error.
func (d *LinuxDriver) OSInfo(ctx context.Context) (OSInfo, error) {
	hostname, err := d.Execute(ctx, "hostname")
	if err != nil {
		return OSInfo{}, fmt.Errorf("hostname: %w", err)
	}
	uname, err := d.Execute(ctx, "uname -a")
	if err != nil {
		return OSInfo{}, fmt.Errorf("uname: %w", err)
	}
	osRelease, err := d.Execute(ctx, "cat /etc/os-release 2>/dev/null | head -5")
	if err != nil {
		osRelease = "N/A"
	}
	return OSInfo{
		Hostname:  strings.TrimSpace(hostname),
		Uname:     strings.TrimSpace(uname),
		OSRelease: strings.TrimSpace(osRelease),
	}, nil
}

// UploadText writes content to a remote file by piping base64 through the
// shell, avoiding quoting pitfalls for arbitrary text.
func (d *LinuxDriver) UploadText(ctx context.Context, remotePath, content string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	cmd := fmt.Sprintf("echo '%s' | base64 -d > %s", encoded, remotePath)
	out, err := d.Execute(ctx, cmd)
	if err != nil {
		return "", fmt.Errorf("upload to %s: %w", logutil.Sanitize(remotePath), err)
	}
	return out, nil
}
