// Package sshchan wraps one authenticated SSH connection and exposes a
// full-duplex interactive shell: bytes in through Write, output out as a
// stream of chunks.
//
// Host keys are accepted without verification. The targets are lab devices
// reached through per-call credentials; there is no key store to verify
// against.
package sshchan

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/netshell-labs/netshell/internal/logging"
	"github.com/netshell-labs/netshell/internal/logutil"
	"github.com/netshell-labs/netshell/internal/sshkeys"
)

// Terminal geometry for the remote PTY. Wide enough that SR OS show output
// does not wrap mid-table.
const (
	termType = "vt100"
	termCols = 220
	termRows = 50
)

const readChunkSize = 4096

// Params describes one transport channel to open.
type Params struct {
	Host     string
	Port     int // 0 means 22
	Username string
	// Password and PrivateKey are mutually acceptable; PrivateKey wins when
	// both are set. Neither is retained after Dial returns.
	Password   string
	PrivateKey []byte // PEM
	// Timeout bounds the TCP dial and SSH handshake.
	Timeout time.Duration
}

// Channel is one interactive shell over one SSH connection. It is exclusively
// owned by a single session and is not safe for concurrent writers.
type Channel struct {
	addr   string
	client *ssh.Client
	sess   *ssh.Session
	stdin  io.WriteCloser
	chunks chan []byte

	closeOnce sync.Once
	closeErr  error
}

// Dial opens an SSH connection, requests a PTY, and starts the remote shell.
// The returned channel is already pumping output into Chunks.
func Dial(ctx context.Context, p Params) (*Channel, error) {
	log := logging.Component("sshchan")

	if p.Host == "" {
		return nil, &ConnectError{Reason: ReasonUnreachable, Msg: "host is empty"}
	}
	port := p.Port
	if port == 0 {
		port = 22
	}
	if port < 0 || port > 65535 {
		return nil, &ConnectError{Reason: ReasonUnreachable, Msg: fmt.Sprintf("invalid port %d", port)}
	}

	redact := func(s string) string {
		s = logutil.Redact(s, p.Password)
		return logutil.Redact(s, string(p.PrivateKey))
	}

	auth, err := authMethods(p)
	if err != nil {
		return nil, &ConnectError{Reason: ReasonAuthFailed, Msg: redact(err.Error())}
	}

	cfg := &ssh.ClientConfig{
		User:            p.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         p.Timeout,
	}

	addr := net.JoinHostPort(p.Host, fmt.Sprintf("%d", port))

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	// Dial in a goroutine so a hung handshake cannot outlive the context.
	var client *ssh.Client
	var dialErr error
	dialDone := make(chan struct{})
	go func() {
		defer close(dialDone)
		client, dialErr = ssh.Dial("tcp", addr, cfg)
	}()

	select {
	case <-ctx.Done():
		go func() {
			// Reap the late dial result, if any.
			<-dialDone
			if client != nil {
				client.Close()
			}
		}()
		return nil, &ConnectError{Reason: ReasonTimeout, Msg: fmt.Sprintf("dial %s: %v", addr, ctx.Err())}
	case <-dialDone:
		if dialErr != nil {
			return nil, classifyDial(dialErr, redact)
		}
	}

	ch, err := startShell(client)
	if err != nil {
		client.Close()
		return nil, &ConnectError{Reason: ReasonUnreachable, Msg: redact(err.Error())}
	}
	ch.addr = addr

	log.Debug().Str("addr", logutil.Sanitize(addr)).Str("user", logutil.Sanitize(p.Username)).Msg("channel open")
	return ch, nil
}

func authMethods(p Params) ([]ssh.AuthMethod, error) {
	if len(p.PrivateKey) > 0 {
		signer, err := sshkeys.ParsePrivateKey(p.PrivateKey)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if p.Password != "" {
		password := p.Password
		return []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(name, instruction string, questions []string, echos []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range questions {
					answers[i] = password
				}
				return answers, nil
			}),
		}, nil
	}
	return nil, fmt.Errorf("no password or private key provided")
}

func startShell(client *ssh.Client) (*Channel, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(termType, termRows, termCols, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	ch := &Channel{
		client: client,
		sess:   sess,
		stdin:  stdin,
		chunks: make(chan []byte, 64),
	}
	go ch.pump(stdout)
	return ch, nil
}

// pump moves shell output onto the chunk channel. It runs until the remote
// side closes the stream, then closes Chunks so readers observe EOF.
func (c *Channel) pump(stdout io.Reader) {
	defer close(c.chunks)
	buf := make([]byte, readChunkSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			c.chunks <- chunk
		}
		if err != nil {
			return
		}
	}
}

// Write sends bytes to the remote shell verbatim.
func (c *Channel) Write(p []byte) error {
	if _, err := c.stdin.Write(p); err != nil {
		return fmt.Errorf("write to channel %s: %w", c.addr, err)
	}
	return nil
}

// WriteString sends a string to the remote shell verbatim.
func (c *Channel) WriteString(s string) error {
	return c.Write([]byte(s))
}

// Chunks returns the stream of shell output. The channel is closed when the
// remote side hangs up or Close is called.
func (c *Channel) Chunks() <-chan []byte {
	return c.chunks
}

// Addr returns the remote address this channel is connected to.
func (c *Channel) Addr() string {
	return c.addr
}

// Close tears down the shell and the SSH connection. Safe to call more than
// once; network errors during teardown are reported but the channel is gone
// either way.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.stdin.Close()
		if err := c.sess.Close(); err != nil && err != io.EOF {
			c.closeErr = err
		}
		if err := c.client.Close(); err != nil && c.closeErr == nil {
			c.closeErr = err
		}
	})
	return c.closeErr
}
