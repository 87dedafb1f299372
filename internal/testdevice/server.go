// Package testdevice runs in-process SSH servers that imitate the devices
// this system drives: a bash-style Linux host and a Nokia SR OS MD-CLI
// router. Driver and session tests dial them like real devices; no network
// leaves the process.
package testdevice

import (
	"bufio"
	"fmt"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/netshell-labs/netshell/internal/sshkeys"
)

// Fixed credentials accepted by every test server.
const (
	Username = "netops"
	Password = "lab123"
)

// Script drives one fake device dialogue over an accepted shell channel.
// It runs in its own goroutine and should return when the channel closes.
type Script func(t *Term)

// Term is the script's view of the shell channel.
type Term struct {
	ch ssh.Channel
	r  *bufio.Reader
}

// ReadLine reads one command line, without the trailing newline.
func (t *Term) ReadLine() (string, error) {
	line, err := t.r.ReadString('\n')
	if err != nil {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// ReadByte reads a single keystroke (pagination continuation).
func (t *Term) ReadByte() (byte, error) {
	return t.r.ReadByte()
}

// Print writes raw bytes to the terminal.
func (t *Term) Print(s string) {
	t.ch.Write([]byte(s))
}

// Println writes a line with a CRLF ending, like a real PTY.
func (t *Term) Println(s string) {
	t.Print(s + "\r\n")
}

// Echo reflects the typed command back, the way a PTY in echo mode does.
func (t *Term) Echo(line string) {
	t.Println(line)
}

// Server is one listening fake device.
type Server struct {
	Addr string
	Host string
	Port int
}

// Start launches a fake device speaking the given script. The listener and
// all connections are torn down via t.Cleanup.
func Start(t testing.TB, script Script) *Server {
	t.Helper()

	_, hostKeyPEM, err := sshkeys.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := sshkeys.ParsePrivateKey(hostKeyPEM)
	if err != nil {
		t.Fatalf("parse host key: %v", err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == Username && string(password) == Password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("wrong credentials")
		},
		// Any key is accepted for the test user; key-auth tests only care
		// that the publickey path is taken.
		PublicKeyCallback: func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() == Username {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown user")
		},
		KeyboardInteractiveCallback: func(conn ssh.ConnMetadata, challenge ssh.KeyboardInteractiveChallenge) (*ssh.Permissions, error) {
			answers, err := challenge(conn.User(), "", []string{"Password: "}, []bool{false})
			if err != nil {
				return nil, err
			}
			if conn.User() == Username && len(answers) == 1 && answers[0] == Password {
				return &ssh.Permissions{}, nil
			}
			return nil, fmt.Errorf("wrong credentials")
		},
	}
	cfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			netConn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleConn(netConn, cfg, script)
		}
	}()
	t.Cleanup(func() {
		listener.Close()
		<-done
	})

	tcpAddr := listener.Addr().(*net.TCPAddr)
	return &Server{
		Addr: listener.Addr().String(),
		Host: tcpAddr.IP.String(),
		Port: tcpAddr.Port,
	}
}

func handleConn(netConn net.Conn, cfg *ssh.ServerConfig, script Script) {
	sshConn, chans, reqs, err := ssh.NewServerConn(netConn, cfg)
	if err != nil {
		netConn.Close()
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go handleSession(ch, requests, script)
	}
}

func handleSession(ch ssh.Channel, requests <-chan *ssh.Request, script Script) {
	defer ch.Close()

	started := make(chan struct{})
	go func() {
		for req := range requests {
			switch req.Type {
			case "pty-req", "window-change":
				if req.WantReply {
					req.Reply(true, nil)
				}
			case "shell":
				if req.WantReply {
					req.Reply(true, nil)
				}
				close(started)
			default:
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		return
	}

	script(&Term{ch: ch, r: bufio.NewReader(ch)})
}
