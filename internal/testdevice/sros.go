package testdevice

import (
	"fmt"
	"strings"
)

// SROSShell scripts a Nokia SR OS MD-CLI device in model-driven mode:
// two-line prompts with a bracketed context path, an exclusive configuration
// candidate with commit/discard, rollback checkpoints, and a pager that is
// disabled by "environment more false".
//
// Config lines containing "bogus" are rejected with a MINOR error. The
// operational command "hang" never answers. "show paged" always emits one
// --More-- stop, simulating a stray pager that survived pagination disable.
func SROSShell() Script {
	return func(t *Term) {
		const host = "pe1"
		configuring := false
		dirty := false
		checkpoints := 1

		opPrompt := func() string {
			return "[/]\r\nA:admin@" + host + "# "
		}
		confPrompt := func() string {
			marker := ""
			if dirty {
				marker = "*"
			}
			return marker + "(ex)[/]\r\nA:admin@" + host + "# "
		}
		prompt := func() string {
			if configuring {
				return confPrompt()
			}
			return opPrompt()
		}

		t.Println("SR OS Software Copyright (c) Nokia 2023")
		t.Print(opPrompt())

		for {
			line, err := t.ReadLine()
			if err != nil {
				return
			}
			t.Echo(line)

			cmd := strings.TrimSpace(line)
			switch {
			case cmd == "environment more false":
				// pagination disabled; canned output below ignores it

			case cmd == "hang":
				continue

			case cmd == "pwc":
				t.Println("Current context: /")

			case cmd == "edit-config exclusive":
				configuring = true
				dirty = false

			case cmd == "quit-config":
				configuring = false

			case cmd == "commit":
				if configuring {
					checkpoints++
					dirty = false
				}

			case cmd == "discard":
				dirty = false

			case strings.HasPrefix(cmd, "rollback"):
				var n int
				fmt.Sscanf(cmd, "rollback %d", &n)
				if n > checkpoints {
					t.Println(fmt.Sprintf("MINOR: MGMT_CORE #4001: no rollback checkpoint at depth %d", n))
				}

			case strings.HasPrefix(cmd, "show version"):
				t.Println("TiMOS-B-23.10.R1 both/x86_64 Nokia 7750 SR Copyright (c) Nokia")

			case strings.HasPrefix(cmd, "show paged"):
				t.Println("entry 1")
				t.Print("--More--")
				if _, err := t.ReadByte(); err != nil {
					return
				}
				t.Println("")
				t.Println("entry 2")

			case configuring && strings.Contains(cmd, "bogus"):
				t.Println("MINOR: MGMT_CORE #2201: Unknown element - 'bogus'")

			case configuring && cmd != "":
				dirty = true

			case strings.HasPrefix(cmd, "ping"):
				t.Println("64 bytes from 10.0.0.1: icmp_seq=1 time=0.4ms")
			}

			t.Print(prompt())
		}
	}
}
