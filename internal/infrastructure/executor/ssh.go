package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/net/proxy"

	"github.com/doeshing/shai-bridge/internal/domain"
	"github.com/doeshing/shai-bridge/internal/pkg/filesystem"
	"github.com/doeshing/shai-bridge/internal/ports"
)

const (
	defaultSSHPort    = 22
	sshConnectTimeout = 15 * time.Second
)

// SSHExecutor runs commands on one remote target. It authenticates with a
// private key and verifies the host against a known_hosts file. A new
// connection is opened per command.
type SSHExecutor struct {
	target domain.Target
	config *ssh.ClientConfig
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewSSHExecutor loads the target's identity and known_hosts files.
func NewSSHExecutor(target domain.Target) (*SSHExecutor, error) {
	if target.Host == "" || target.User == "" {
		return nil, fmt.Errorf("target %q needs host and user", target.Name)
	}

	keyPath := filesystem.ExpandPath(target.IdentityFile, filesystem.ExpandPath("~/.ssh/id_ed25519", ""))
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("target %q: read identity: %w", target.Name, err)
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("target %q: parse identity (passphrase-protected keys are not supported): %w", target.Name, err)
	}

	hostsPath := filesystem.ExpandPath(target.KnownHostsFile, filesystem.ExpandPath("~/.ssh/known_hosts", ""))
	hostKeys, err := knownhosts.New(hostsPath)
	if err != nil {
		return nil, fmt.Errorf("target %q: load known_hosts: %w", target.Name, err)
	}

	return newSSHExecutor(target, signer, hostKeys)
}

func newSSHExecutor(target domain.Target, signer ssh.Signer, hostKeys ssh.HostKeyCallback) (*SSHExecutor, error) {
	dial, err := dialerFor(target.Proxy)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", target.Name, err)
	}
	return &SSHExecutor{
		target: target,
		config: &ssh.ClientConfig{
			User:            target.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeys,
			Timeout:         sshConnectTimeout,
		},
		dial: dial,
	}, nil
}

func dialerFor(proxyAddr string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	if proxyAddr == "" {
		var d net.Dialer
		return d.DialContext, nil
	}
	socks, err := proxy.SOCKS5("tcp", proxyAddr, nil, &net.Dialer{Timeout: sshConnectTimeout})
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", proxyAddr, err)
	}
	ctxDialer, ok := socks.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("socks5 dialer does not support contexts")
	}
	return ctxDialer.DialContext, nil
}

// Addr returns host:port for the target.
func (e *SSHExecutor) Addr() string {
	port := e.target.Port
	if port == 0 {
		port = defaultSSHPort
	}
	return net.JoinHostPort(e.target.Host, strconv.Itoa(port))
}

// Execute implements ports.CommandExecutor.
func (e *SSHExecutor) Execute(ctx context.Context, target, command string) (domain.ExecutionResult, error) {
	result := domain.ExecutionResult{Target: target, Command: command}
	start := time.Now()

	client, err := e.connect(ctx)
	if err != nil {
		return result, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return result, fmt.Errorf("ssh session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case err = <-done:
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		client.Close()
		<-done
		result.Stdout, result.Stderr = stdout.String(), stderr.String()
		result.Duration = time.Since(start)
		return result, ctx.Err()
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	result.Duration = time.Since(start)

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
		result.Ran = true
	case errors.As(err, &exitErr):
		result.Ran = true
		result.ExitCode = exitErr.ExitStatus()
	default:
		return result, fmt.Errorf("ssh run on %s: %w", target, err)
	}
	return result, nil
}

func (e *SSHExecutor) connect(ctx context.Context) (*ssh.Client, error) {
	addr := e.Addr()
	dialCtx, cancel := context.WithTimeout(ctx, sshConnectTimeout)
	defer cancel()

	conn, err := e.dial(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := dialCtx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, e.config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

var _ ports.CommandExecutor = (*SSHExecutor)(nil)
