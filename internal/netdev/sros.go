package netdev

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/netshell-labs/netshell/internal/logging"
	"github.com/netshell-labs/netshell/internal/prompt"
	"github.com/netshell-labs/netshell/internal/sshchan"
)

// MD-CLI protocol verbs (model-driven mode, SR OS 23+). The configuration
// candidate is edited exclusively so concurrent CLI users cannot interleave
// with an in-flight transaction.
const (
	srosConfigEnter  = "edit-config exclusive"
	srosConfigExit   = "quit-config"
	srosCommit       = "commit"
	srosDiscard      = "discard"
	srosContextQuery = "pwc"
	srosNoMoreSuffix = " | no-more"

	contextOperational = "operational"
)

// Per-verb waits, after the original implementation's tuning: entering the
// exclusive candidate and committing touch the config datastore and get the
// long waits; bookkeeping commands get short ones.
const (
	srosEnterWait   = 15 * time.Second
	srosLineWait    = 30 * time.Second
	srosCommitWait  = 30 * time.Second
	srosDiscardWait = 15 * time.Second
	srosExitWait    = 10 * time.Second
	srosPwcWait     = 10 * time.Second
	srosSetupWait   = 30 * time.Second
)

// SROSDriver drives Nokia SR OS MD-CLI. It is a two-state machine:
// operational (the resting state) and configuring (entered only inside
// Configure, and always exited before Configure returns — on every path).
// If the driver ever fails to get back to operational it latches desynced
// and every later call fails fast until the session is torn down.
type SROSDriver struct {
	conv     *conversation
	hostname string

	configuring bool
	lastContext string
	desync      *DriverDesyncError
}

// NewSROS creates an SR OS driver bound to the given channel. Call Setup
// before issuing commands.
func NewSROS(ch *sshchan.Channel, opts Options) *SROSDriver {
	return &SROSDriver{
		conv:        newConversation(ch, prompt.SROS(), opts),
		lastContext: contextOperational,
	}
}

func (d *SROSDriver) DeviceType() string { return "sros" }

// Hostname returns the device name parsed from the login prompt.
func (d *SROSDriver) Hostname() string { return d.hostname }

// LastContext returns the cached context path from the last completed
// operation.
func (d *SROSDriver) LastContext() string { return d.lastContext }

// Setup waits for the login banner, captures the hostname from the prompt,
// and disables pagination.
func (d *SROSDriver) Setup(ctx context.Context) error {
	banner, err := d.conv.readUntilPrompt(ctx, srosSetupWait)
	if err != nil {
		return fmt.Errorf("banner prompt: %w", err)
	}
	if host, ok := prompt.ParseSROSHostname(banner); ok {
		d.hostname = host
	}

	for _, cmd := range d.conv.matcher.Profile().SetupCommands {
		if _, _, err := d.conv.exchange(ctx, cmd, srosPwcWait); err != nil {
			return fmt.Errorf("pagination disable: %w", err)
		}
	}

	log := logging.Component("netdev")
	log.Debug().Str("device", "sros").Str("hostname", d.hostname).Msg("md-cli ready")
	return nil
}

// guard fails fast once the driver is desynced, and rejects operational-only
// commands from inside a configuration context.
func (d *SROSDriver) guard() error {
	if d.desync != nil {
		return d.desync
	}
	if d.configuring {
		return &WrongContextError{Context: d.lastContext}
	}
	return nil
}

// Execute runs an MD-CLI operational command. Show commands get "| no-more"
// appended as a second line of defense against pagination.
func (d *SROSDriver) Execute(ctx context.Context, command string) (string, error) {
	if err := d.guard(); err != nil {
		return "", err
	}
	cmd := strings.TrimSpace(command)
	if strings.HasPrefix(strings.ToLower(cmd), "show") && !strings.Contains(cmd, srosNoMoreSuffix) {
		cmd += srosNoMoreSuffix
	}
	out, raw, err := d.conv.exchange(ctx, cmd, 0)
	if err != nil {
		return "", err
	}
	d.trackContext(raw)
	return out, nil
}

// ExecuteBatch runs operational commands sequentially; per-command results,
// no abort on failure.
func (d *SROSDriver) ExecuteBatch(ctx context.Context, commands []string) []BatchResult {
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

// SendRaw writes text verbatim and returns output accumulated within the
// quiescence window.
func (d *SROSDriver) SendRaw(ctx context.Context, text string, wait time.Duration) (string, error) {
	if d.desync != nil {
		return "", d.desync
	}
	return d.conv.drainRaw(ctx, text, wait)
}

// ConfigResult is the outcome of one configuration transaction.
type ConfigResult struct {
	Committed     bool          `json:"committed"`
	ContextBefore string        `json:"context_before"`
	ContextAfter  string        `json:"context_after"`
	Steps         []BatchResult `json:"per_command_output"`
}

// Configure runs one atomic configuration transaction: enter the exclusive
// candidate, submit each line, then commit or discard, then exit back to
// operational.
//
// The operational-context invariant holds on every path: if anything fails
// mid-sequence the driver attempts a best-effort discard + exit before
// returning. Only when even that exit fails does the driver latch desynced
// and return DriverDesyncError.
//
// A line the device rejects (MINOR:/MAJOR: signature) is not a Go error: the
// transaction is discarded, Committed is false, and the rejection output is
// in Steps.
func (d *SROSDriver) Configure(ctx context.Context, commands []string, commit bool) (ConfigResult, error) {
	if err := d.guard(); err != nil {
		return ConfigResult{}, err
	}

	log := logging.Component("netdev")
	res := ConfigResult{}

	before, err := d.queryContext(ctx)
	if err != nil {
		return ConfigResult{}, err
	}
	res.ContextBefore = before

	enterOut, raw, err := d.conv.exchange(ctx, srosConfigEnter, srosEnterWait)
	if err != nil {
		return ConfigResult{}, fmt.Errorf("enter configuration: %w", err)
	}
	d.configuring = true
	d.trackContext(raw)
	res.Steps = append(res.Steps, BatchResult{Command: srosConfigEnter, Output: enterOut})

	// From here on we owe the caller an exit to operational, whatever happens.
	rejected := false
	var stepErr error

	for _, cmd := range commands {
		out, raw, err := d.conv.exchange(ctx, cmd, srosLineWait)
		if err != nil {
			stepErr = fmt.Errorf("configuration line %q: %w", cmd, err)
			break
		}
		d.trackContext(raw)
		step := BatchResult{Command: cmd, Output: out}
		if d.conv.matcher.LooksLikeError(out) {
			step.Error = "rejected by device"
			rejected = true
		}
		res.Steps = append(res.Steps, step)
		if rejected {
			break
		}
	}

	if stepErr == nil && !rejected && commit {
		out, raw, err := d.conv.exchange(ctx, srosCommit, srosCommitWait)
		if err != nil {
			stepErr = fmt.Errorf("commit: %w", err)
		} else {
			d.trackContext(raw)
			step := BatchResult{Command: srosCommit, Output: out}
			if d.conv.matcher.LooksLikeError(out) {
				step.Error = "commit rejected by device"
				rejected = true
			} else {
				res.Committed = true
			}
			res.Steps = append(res.Steps, step)
		}
	}

	// Anything uncommitted is discarded: explicit discard requests, rejected
	// lines, and error paths alike.
	if stepErr == nil && !res.Committed {
		out, raw, err := d.conv.exchange(ctx, srosDiscard, srosDiscardWait)
		if err != nil {
			stepErr = fmt.Errorf("discard: %w", err)
		} else {
			d.trackContext(raw)
			res.Steps = append(res.Steps, BatchResult{Command: srosDiscard, Output: out})
		}
	}

	if stepErr != nil {
		// Best-effort recovery: discard whatever is pending and exit.
		if derr := d.recoverToOperational(ctx); derr != nil {
			return ConfigResult{}, derr
		}
		after, _ := d.queryContext(ctx)
		log.Warn().Str("context", after).Err(stepErr).Msg("configuration aborted")
		return ConfigResult{}, stepErr
	}

	out, raw, err := d.conv.exchange(ctx, srosConfigExit, srosExitWait)
	if err != nil {
		if derr := d.recoverToOperational(ctx); derr != nil {
			return ConfigResult{}, derr
		}
	} else {
		d.configuring = false
		d.trackContext(raw)
		res.Steps = append(res.Steps, BatchResult{Command: srosConfigExit, Output: out})
	}

	after, err := d.queryContext(ctx)
	if err != nil {
		return ConfigResult{}, err
	}
	res.ContextAfter = after
	return res, nil
}

// recoverToOperational is the error-path escape from a configuration
// context: discard, then exit. If the exit cannot be confirmed the driver
// latches desynced.
func (d *SROSDriver) recoverToOperational(ctx context.Context) error {
	if !d.configuring {
		return nil
	}
	_, _, _ = d.conv.exchange(ctx, srosDiscard, srosDiscardWait)
	if _, raw, err := d.conv.exchange(ctx, srosConfigExit, srosExitWait); err == nil {
		d.configuring = false
		d.trackContext(raw)
		return nil
	}
	d.desync = &DriverDesyncError{Reason: "could not exit configuration context"}
	log := logging.Component("netdev")
	log.Error().Str("hostname", d.hostname).Msg("driver desynchronized")
	return d.desync
}

// GetContext queries the current CLI context path (pwc). Read-only and
// idempotent.
func (d *SROSDriver) GetContext(ctx context.Context) (string, error) {
	if d.desync != nil {
		return "", d.desync
	}
	return d.queryContext(ctx)
}

func (d *SROSDriver) queryContext(ctx context.Context) (string, error) {
	out, raw, err := d.conv.exchange(ctx, srosContextQuery, srosPwcWait)
	if err != nil {
		return "", fmt.Errorf("context query: %w", err)
	}
	d.trackContext(raw)
	return prompt.ParsePwc(out), nil
}

// Rollback reverts the committed configuration by the given number of
// checkpoints. Operational context only.
func (d *SROSDriver) Rollback(ctx context.Context, steps int) (string, error) {
	if err := d.guard(); err != nil {
		return "", err
	}
	if steps < 1 {
		return "", &RollbackError{Steps: steps, Output: "steps must be a positive integer"}
	}

	out, raw, err := d.conv.exchange(ctx, fmt.Sprintf("rollback %d", steps), srosCommitWait)
	if err != nil {
		return "", err
	}
	d.trackContext(raw)
	if d.conv.matcher.LooksLikeError(out) {
		return "", &RollbackError{Steps: steps, Output: strings.TrimSpace(out)}
	}
	return d.queryContext(ctx)
}

// trackContext caches the context path visible in the prompt tail of raw
// output, for cheap metadata snapshots.
func (d *SROSDriver) trackContext(raw string) {
	if path, ok := d.conv.matcher.Context(raw); ok {
		if d.configuring {
			d.lastContext = path
		} else if path == "/" {
			d.lastContext = contextOperational
		} else {
			d.lastContext = path
		}
	}
}
