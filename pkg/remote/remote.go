// Package remote runs administrative commands on a deployment target over SSH.
//
// Every call opens its own connection and session and closes both before returning. Nothing is
// retried here; callers decide what a failure means.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"sitebuilder/pkg/faults"
	"sitebuilder/pkg/logx"
)

// DefaultDialTimeout applies when Target.DialTimeout is zero.
const DefaultDialTimeout = 15 * time.Second

// Target describes one SSH endpoint and the directory commands run in.
//
//nolint:govet // Field grouping follows meaning, not alignment
type Target struct {
	Host             string        `json:"host"`
	Port             int           `json:"port"`
	Username         string        `json:"username"`
	Password         string        `json:"-"`
	PrivateKey       []byte        `json:"-"` // PEM
	Passphrase       string        `json:"-"` // For an encrypted PrivateKey
	WorkingDirectory string        `json:"working_directory"`
	KnownHostsFile   string        `json:"known_hosts_file,omitempty"`
	InsecureHostKey  bool          `json:"insecure_host_key,omitempty"` // Accept any host key
	DialTimeout      time.Duration `json:"dial_timeout,omitempty"`
}

// Addr returns host:port, defaulting the port to 22.
func (t Target) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// Channel executes commands against one target.
type Channel interface {
	// Run executes command in the target's working directory and returns trimmed stdout.
	// Cancelling ctx while the command runs may abandon it half-done on the target;
	// callers that need it to finish pass context.WithoutCancel.
	Run(ctx context.Context, command string) (string, error)
	// Serialized reports whether concurrent Run calls are executed one at a time.
	Serialized() bool
}

// SSH is a Channel that opens a fresh connection per Run.
type SSH struct {
	target Target
	logger *logx.Logger
}

// NewSSH returns a Channel for target.
func NewSSH(target Target) *SSH {
	return &SSH{target: target, logger: logx.NewLogger("remote").With(target.Host)}
}

// Run implements Channel.
func (s *SSH) Run(ctx context.Context, command string) (string, error) {
	s.logger.Debug("exec: %s", command)
	return Exec(ctx, s.target, command)
}

// Serialized implements Channel. Independent connections give no ordering guarantee.
func (s *SSH) Serialized() bool { return false }

// serialChannel runs one command at a time through the wrapped channel.
type serialChannel struct {
	next Channel
	mu   sync.Mutex
}

// Serialize wraps ch so that concurrent callers are queued.
func Serialize(ch Channel) Channel {
	if ch.Serialized() {
		return ch
	}
	return &serialChannel{next: ch}
}

func (c *serialChannel) Run(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next.Run(ctx, command)
}

func (c *serialChannel) Serialized() bool { return true }

// Exec opens an authenticated session to target, runs `cd <wd> && command` and returns trimmed
// stdout on exit status 0.
//
//	dial failure                -> faults.TypeNetwork
//	rejected credentials or key -> faults.TypeAuthentication
//	other handshake/protocol    -> faults.TypeNetwork
//	non-zero exit               -> faults.TypeRemoteCommand (command, stderr, exit code)
//	ctx cancelled mid-command   -> faults.TypeNetwork
//
// Cancelling ctx after the session has started closes the connection without waiting for the
// command. The remote process may keep running or die with the session, so its effects are
// unknown.
func Exec(ctx context.Context, target Target, command string) (string, error) {
	cfg, err := clientConfig(target)
	if err != nil {
		return "", err
	}

	timeout := target.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	addr := target.Addr()

	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", faults.Network(err, "dial "+addr)
	}
	defer conn.Close()

	// The handshake is bounded by the dial timeout; the command itself is not.
	_ = conn.SetDeadline(time.Now().Add(timeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		return "", classifyHandshake(addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", faults.Network(err, "open session on "+addr)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	full, err := inDirectory(target.WorkingDirectory, command)
	if err != nil {
		return "", err
	}

	done := make(chan error, 1)
	go func() { done <- session.Run(full) }()

	select {
	case <-ctx.Done():
		client.Close()
		<-done
		return "", faults.Network(ctx.Err(), "command interrupted on "+addr)
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return "", faults.RemoteCommand(command, strings.TrimSpace(stderr.String()), exitErr.ExitStatus(), err)
		}
		var missing *ssh.ExitMissingError
		if errors.As(err, &missing) {
			return "", faults.Network(err, "session on "+addr+" closed without exit status")
		}
		return "", faults.Network(err, "run command on "+addr)
	}

	return strings.TrimSpace(stdout.String()), nil
}

func inDirectory(dir, command string) (string, error) {
	if dir == "" {
		return command, nil
	}
	quoted, err := Quote(dir)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("cd %s && %s", quoted, command), nil
}

func clientConfig(target Target) (*ssh.ClientConfig, error) {
	if target.Host == "" {
		return nil, faults.New(faults.TypeInternal, "remote target has no host")
	}

	var methods []ssh.AuthMethod
	if len(target.PrivateKey) > 0 {
		var (
			signer ssh.Signer
			err    error
		)
		if target.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(target.PrivateKey, []byte(target.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(target.PrivateKey)
		}
		if err != nil {
			return nil, faults.Auth(err, "parse private key")
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if target.Password != "" {
		methods = append(methods, ssh.Password(target.Password))
	}
	if len(methods) == 0 {
		return nil, faults.Auth(nil, "no password or private key for "+target.Username+"@"+target.Host)
	}

	var hostKey ssh.HostKeyCallback
	switch {
	case target.KnownHostsFile != "":
		cb, err := knownhosts.New(target.KnownHostsFile)
		if err != nil {
			return nil, faults.Wrap(faults.TypeInternal, err, "load known hosts "+target.KnownHostsFile)
		}
		hostKey = cb
	case target.InsecureHostKey:
		hostKey = ssh.InsecureIgnoreHostKey() //nolint:gosec // Explicitly requested by the operator
	default:
		return nil, faults.Auth(nil, "no known_hosts file configured for "+target.Host)
	}

	return &ssh.ClientConfig{
		User:            target.Username,
		Auth:            methods,
		HostKeyCallback: hostKey,
	}, nil
}

func classifyHandshake(addr string, err error) error {
	var keyErr *knownhosts.KeyError
	if errors.As(err, &keyErr) {
		return faults.Auth(err, "host key verification failed for "+addr)
	}
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "knownhosts:") {
		return faults.Auth(err, "authentication rejected by "+addr)
	}
	return faults.Network(err, "ssh handshake with "+addr)
}
