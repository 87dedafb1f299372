// Package prompt decides when an interactive CLI has finished responding.
//
// Completion detection on a prompt-based shell is heuristic: there is no
// end-of-response marker, only the reappearance of a prompt. Each device type
// carries a Profile of patterns (data, not code) and the Matcher applies them
// to the accumulating output stream. Callers enforce the hard timeout.
package prompt

import "regexp"

// DefaultLinuxSentinel is the PS1 value pinned on Linux hosts right after
// connect, so that completion detection does not depend on whatever prompt
// the remote account was configured with.
const DefaultLinuxSentinel = "MCPPROMPT$ "

// Profile is the static prompt grammar for one device type.
type Profile struct {
	Name string

	// TerminalPatterns mark a complete response: one of them matches at the
	// end of the accumulated output.
	TerminalPatterns []*regexp.Regexp

	// MorePattern recognizes a pagination stop ("--More--" style). Pagination
	// is disabled at connect, but stray pagers still happen.
	MorePattern *regexp.Regexp
	// MoreResponse is the keystroke sent to continue past a pagination stop.
	MoreResponse string

	// ErrorPatterns are device error signatures in command output.
	ErrorPatterns []*regexp.Regexp

	// ContextPattern extracts the CLI context path from the prompt tail
	// (capture group 1). Nil for devices without prompt contexts.
	ContextPattern *regexp.Regexp

	// SetupCommands are sent once after connect to disable pagination and the
	// like. Linux prompt pinning is stateful and handled by its driver.
	SetupCommands []string
}

// Linux returns the profile used right after connecting to a Linux host,
// before the prompt is pinned. The terminal pattern is a wide union covering
// stock bash/zsh prompts plus the fancier powerline-style endings.
func Linux() Profile {
	return Profile{
		Name: "linux",
		TerminalPatterns: []*regexp.Regexp{
			regexp.MustCompile(`[\$#>]\s*$`),
			regexp.MustCompile(`└──>\s*$`),
			regexp.MustCompile(`»\s*$`),
			regexp.MustCompile(`❯\s*$`),
		},
		MorePattern:  regexp.MustCompile(`--More--\s*$`),
		MoreResponse: " ",
	}
}

// LinuxPinned returns the Linux profile after PS1 has been set to sentinel.
// Completion detection is exact from this point on.
func LinuxPinned(sentinel string) Profile {
	if sentinel == "" {
		sentinel = DefaultLinuxSentinel
	}
	return Profile{
		Name: "linux",
		TerminalPatterns: []*regexp.Regexp{
			regexp.MustCompile(regexp.QuoteMeta(sentinel) + `\s*$`),
		},
		MorePattern:  regexp.MustCompile(`--More--\s*$`),
		MoreResponse: " ",
	}
}

// SROS returns the profile for Nokia SR OS MD-CLI (model-driven mode,
// SR OS 23+). The prompt is two lines: an optional modification marker plus
// edit-mode tag and bracketed context path, then "A:<user>@<host>#".
func SROS() Profile {
	return Profile{
		Name: "sros",
		TerminalPatterns: []*regexp.Regexp{
			regexp.MustCompile(`[\*\!]?\(?[\w\-]*\)?(\[.*?\])?\r?\n[AB]:[^\s#@]+@[^\s#]+#\s*$`),
		},
		MorePattern:  regexp.MustCompile(`(--More--|Press any key to continue[^\n]*)\s*$`),
		MoreResponse: " ",
		ErrorPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?m)^MINOR: `),
			regexp.MustCompile(`(?m)^MAJOR: `),
			regexp.MustCompile(`(?m)^CRITICAL: `),
			regexp.MustCompile(`(?m)^Error: `),
		},
		ContextPattern: regexp.MustCompile(`\[([^\]]*)\]\r?\n[AB]:[^\s#@]+@[^\s#]+#\s*$`),
		SetupCommands:  []string{"environment more false"},
	}
}

// SROSHostnamePattern extracts the device hostname from the MD-CLI prompt.
var SROSHostnamePattern = regexp.MustCompile(`[AB]:[^\s#@]+@([^\s#]+)#`)

// PwcPattern extracts the context path from "pwc" command output.
var PwcPattern = regexp.MustCompile(`Current context:\s*(.+)`)
