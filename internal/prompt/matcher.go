package prompt

import (
	"regexp"
	"strings"
)

// Matcher applies one device profile to accumulated output. It is pure state
// over byte streams: no I/O, no timing. Drivers own the read loop and the
// timeout; the Matcher only answers questions about what has arrived so far.
type Matcher struct {
	p Profile
}

// NewMatcher returns a matcher for the given profile.
func NewMatcher(p Profile) *Matcher {
	return &Matcher{p: p}
}

// Profile returns the profile this matcher applies.
func (m *Matcher) Profile() Profile {
	return m.p
}

// Done reports whether the accumulated output ends with a terminal prompt.
func (m *Matcher) Done(buf string) bool {
	for _, re := range m.p.TerminalPatterns {
		if re.MatchString(buf) {
			return true
		}
	}
	return false
}

// More reports whether the output is stopped at a pagination prompt.
func (m *Matcher) More(buf string) bool {
	return m.p.MorePattern != nil && m.p.MorePattern.MatchString(buf)
}

// StripMore removes the trailing pagination marker after the continuation
// keystroke has been sent, so it neither re-triggers nor reaches the caller.
func (m *Matcher) StripMore(buf string) string {
	if m.p.MorePattern == nil {
		return buf
	}
	return m.p.MorePattern.ReplaceAllString(buf, "")
}

// MoreResponse returns the continuation keystroke for this profile.
func (m *Matcher) MoreResponse() string {
	return m.p.MoreResponse
}

// Context extracts the CLI context path from the prompt at the end of buf.
func (m *Matcher) Context(buf string) (string, bool) {
	if m.p.ContextPattern == nil {
		return "", false
	}
	match := m.p.ContextPattern.FindStringSubmatch(buf)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// LooksLikeError reports whether out carries one of the profile's device
// error signatures.
func (m *Matcher) LooksLikeError(out string) bool {
	for _, re := range m.p.ErrorPatterns {
		if re.MatchString(out) {
			return true
		}
	}
	return false
}

// Clean strips the echoed command line and the trailing prompt from raw
// output, returning the response text verbatim (embedded newlines kept,
// line endings normalized to \n).
func (m *Matcher) Clean(raw, command string) string {
	// Cut the trailing prompt first: find the terminal pattern match that
	// ends the buffer and slice it off.
	for _, re := range m.p.TerminalPatterns {
		if loc := lastMatch(re, raw); loc != nil && loc[1] == len(raw) {
			raw = raw[:loc[0]]
			break
		}
	}

	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")

	// Drop the first line echoing the command. The echo may carry the prompt
	// in front of it, so containment is the right test.
	cmd := strings.TrimSpace(command)
	skipEcho := cmd != ""
	result := make([]string, 0, len(lines))
	for _, line := range lines {
		if skipEcho && strings.Contains(line, cmd) {
			skipEcho = false
			continue
		}
		result = append(result, strings.TrimRight(line, "\r"))
	}

	return strings.TrimSpace(strings.Join(result, "\n"))
}

// lastMatch returns the location of the last match of re in s, or nil.
func lastMatch(re *regexp.Regexp, s string) []int {
	all := re.FindAllStringIndex(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

// ParsePwc extracts the context path from the output of the "pwc" context
// query. When the expected marker is missing the whole trimmed output is
// returned, matching what the device printed.
func ParsePwc(out string) string {
	if match := PwcPattern.FindStringSubmatch(out); match != nil {
		return strings.TrimSpace(match[1])
	}
	return strings.TrimSpace(out)
}

// ParseSROSHostname extracts the device hostname from an MD-CLI banner or
// prompt fragment.
func ParseSROSHostname(buf string) (string, bool) {
	match := SROSHostnamePattern.FindStringSubmatch(buf)
	if match == nil {
		return "", false
	}
	return match[1], true
}
