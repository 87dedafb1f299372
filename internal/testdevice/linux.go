package testdevice

import (
	"strings"
	"time"
)

// LinuxShell scripts a bash-like host: a fancy initial prompt, PS1 pinning,
// a handful of canned commands, and a persistent working directory so batch
// tests can observe shared shell state.
//
// Special commands:
//
//	hang  — produces no output and no prompt (timeout testing)
//	slow  — sleeps 300ms before answering (serialization testing)
func LinuxShell() Script {
	return func(t *Term) {
		prompt := "netops@lab-host:~$ "
		cwd := "/home/netops"

		t.Println("Welcome to Lab Linux 6.1")
		t.Print(prompt)

		for {
			line, err := t.ReadLine()
			if err != nil {
				return
			}
			t.Echo(line)

			cmd := strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(cmd, "export PS1='"):
				rest := strings.TrimPrefix(cmd, "export PS1='")
				if i := strings.Index(rest, "'"); i >= 0 {
					prompt = rest[:i]
				}

			case cmd == "export TERM=dumb; unset HISTFILE":
				// environment scrubbing, no output

			case cmd == "hang":
				continue // no output, no prompt

			case cmd == "slow":
				time.Sleep(300 * time.Millisecond)
				t.Println("done")

			case strings.HasPrefix(cmd, "echo "):
				t.Println(strings.TrimSpace(strings.TrimPrefix(cmd, "echo ")))

			case cmd == "hostname":
				t.Println("lab-host")

			case cmd == "uname -a":
				t.Println("Linux lab-host 6.1.0-18-amd64 #1 SMP x86_64 GNU/Linux")

			case strings.HasPrefix(cmd, "cat /etc/os-release"):
				t.Println(`PRETTY_NAME="Debian GNU/Linux 12 (bookworm)"`)
				t.Println(`NAME="Debian GNU/Linux"`)

			case strings.HasPrefix(cmd, "cd "):
				cwd = strings.TrimSpace(strings.TrimPrefix(cmd, "cd "))

			case cmd == "pwd":
				t.Println(cwd)

			case cmd == "false":
				// exit codes are invisible to the driver; nothing to print

			case cmd != "":
				t.Println("bash: " + cmd + ": command not found")
			}

			t.Print(prompt)
		}
	}
}
