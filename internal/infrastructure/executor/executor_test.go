package executor

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/doeshing/shai-bridge/internal/domain"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
}

func TestLocalExecutor(t *testing.T) {
	requireUnix(t)
	exec := NewLocalExecutor("/bin/sh")

	res, err := exec.Execute(context.Background(), "local", "echo hello; echo oops >&2")
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, "local", res.Target)

	res, err = exec.Execute(context.Background(), "local", "exit 3")
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, 3, res.ExitCode)
}

func TestLocalExecutorCancel(t *testing.T) {
	requireUnix(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewLocalExecutor("/bin/sh").Execute(ctx, "local", "sleep 5")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

type recordingExecutor struct {
	targets []string
}

func (r *recordingExecutor) Execute(_ context.Context, target, command string) (domain.ExecutionResult, error) {
	r.targets = append(r.targets, target)
	return domain.ExecutionResult{Target: target, Command: command, Ran: true}, nil
}

func TestRouter(t *testing.T) {
	local := &recordingExecutor{}
	remote := &recordingExecutor{}
	r := NewRouter(local)
	r.Register("web1", remote)

	_, err := r.Execute(context.Background(), "", "ls")
	require.NoError(t, err)
	_, err = r.Execute(context.Background(), "web1", "ls")
	require.NoError(t, err)

	_, err = r.Execute(context.Background(), "db9", "ls")
	assert.ErrorIs(t, err, domain.ErrUnknownTarget)

	assert.Equal(t, []string{domain.LocalTargetName}, local.targets)
	assert.Equal(t, []string{"web1"}, remote.targets)
	assert.Equal(t, []string{"local", "web1"}, r.Targets())
}

// startSSHServer runs a minimal exec-only SSH server accepting clientKey.
func startSSHServer(t *testing.T, clientKey ssh.PublicKey) (string, ssh.PublicKey) {
	t.Helper()
	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	hostSigner, err := ssh.NewSignerFromKey(hostPriv)
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientKey.Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unauthorized")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, cfg)
		}
	}()
	return ln.Addr().String(), hostSigner.PublicKey()
}

func serveSSH(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, chReqs, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range chReqs {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				var payload struct{ Command string }
				_ = ssh.Unmarshal(req.Payload, &payload)
				_ = req.Reply(true, nil)

				status := uint32(0)
				switch payload.Command {
				case "hostname":
					_, _ = io.WriteString(ch, "web1\n")
				default:
					_, _ = io.WriteString(ch.Stderr(), "not found\n")
					status = 127
				}
				_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
				return
			}
		}()
	}
}

type sshFixture struct {
	target domain.Target
	addr   string
}

func newSSHFixture(t *testing.T, trustHost bool) sshFixture {
	t.Helper()
	dir := t.TempDir()

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sshPub, err := ssh.NewPublicKey(clientPub)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKey(clientPriv, "")
	require.NoError(t, err)
	keyPath := filepath.Join(dir, "id_ed25519")
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600))

	addr, hostKey := startSSHServer(t, sshPub)
	if !trustHost {
		_, otherPriv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)
		other, err := ssh.NewSignerFromKey(otherPriv)
		require.NoError(t, err)
		hostKey = other.PublicKey()
	}
	hostsPath := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{knownhosts.Normalize(addr)}, hostKey) + "\n"
	require.NoError(t, os.WriteFile(hostsPath, []byte(line), 0o600))

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	return sshFixture{
		addr: addr,
		target: domain.Target{
			Name:           "web1",
			Host:           host,
			Port:           port,
			User:           "deploy",
			IdentityFile:   keyPath,
			KnownHostsFile: hostsPath,
		},
	}
}

func TestSSHExecutor(t *testing.T) {
	fx := newSSHFixture(t, true)
	exec, err := NewSSHExecutor(fx.target)
	require.NoError(t, err)
	assert.Equal(t, fx.addr, exec.Addr())

	res, err := exec.Execute(context.Background(), "web1", "hostname")
	require.NoError(t, err)
	assert.True(t, res.Ran)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "web1\n", res.Stdout)

	res, err = exec.Execute(context.Background(), "web1", "missing-binary")
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
	assert.Equal(t, "not found\n", res.Stderr)
}

func TestSSHExecutorRejectsUnknownHostKey(t *testing.T) {
	fx := newSSHFixture(t, false)
	exec, err := NewSSHExecutor(fx.target)
	require.NoError(t, err)

	res, err := exec.Execute(context.Background(), "web1", "hostname")
	require.Error(t, err)
	assert.False(t, res.Ran)
	assert.Contains(t, err.Error(), "handshake")
}

func TestNewSSHExecutorValidation(t *testing.T) {
	_, err := NewSSHExecutor(domain.Target{Name: "x"})
	assert.Error(t, err)

	_, err = NewSSHExecutor(domain.Target{Name: "x", Host: "h", User: "u", IdentityFile: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}
