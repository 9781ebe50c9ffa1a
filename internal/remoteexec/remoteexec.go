// Package remoteexec is the uniform shell/file-transfer API over target and
// agent hosts (spec §4.1, C2). It plays the role the teacher's
// pkg/salt/push.go plays (ssh exec + scp-style transfer, bastion-aware) but
// talks the wire protocol directly via golang.org/x/crypto/ssh instead of
// shelling out to the `ssh`/`scp` binaries, and wraps every call in the
// retry policy from internal/retry.
package remoteexec

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/retry"
	"golang.org/x/crypto/ssh"
)

// Host identifies a remote endpoint and the credentials to reach it.
type Host struct {
	Address     string // public or private IP / hostname
	Port        int    // default 22
	User        string
	SSHIdentity string // path to a private key file
	BastionAddr string // optional: proxy-jump through this host first
	BastionUser string
	BastionKey  string
}

func (h Host) port() int {
	if h.Port == 0 {
		return 22
	}
	return h.Port
}

// Result is the outcome of Exec.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Executor is the contract every cluster backend and monitor drives remote
// hosts through.
type Executor interface {
	Exec(ctx context.Context, host Host, cmd string, onStdoutLine func(string)) (Result, error)
	Upload(ctx context.Context, host Host, localPath, remotePath string) error
	Download(ctx context.Context, host Host, remotePath, localPath string) error
	EnsureConnectivity(ctx context.Context, host Host, timeout time.Duration) error
}

// SSHExecutor is the production Executor. Every call is retried under
// retry.HostPolicy(): 5 attempts, 1s base, 30s cap (spec §4.1).
type SSHExecutor struct {
	runner *retry.Runner
}

// NewSSHExecutor constructs the default executor.
func NewSSHExecutor() *SSHExecutor {
	return &SSHExecutor{runner: retry.New(retry.HostPolicy())}
}

func dial(host Host) (*ssh.Client, error) {
	config, err := clientConfig(host.User, host.SSHIdentity)
	if err != nil {
		return nil, herrors.Configuration("invalid ssh identity", err)
	}

	addr := net.JoinHostPort(host.Address, itoa(host.port()))

	if host.BastionAddr == "" {
		client, err := ssh.Dial("tcp", addr, config)
		if err != nil {
			return nil, herrors.TransientHost(fmt.Sprintf("dial %s", addr), err)
		}
		return client, nil
	}

	bastionConfig, err := clientConfig(host.BastionUser, host.BastionKey)
	if err != nil {
		return nil, herrors.Configuration("invalid bastion ssh identity", err)
	}
	bastionAddr := net.JoinHostPort(host.BastionAddr, "22")
	bastionClient, err := ssh.Dial("tcp", bastionAddr, bastionConfig)
	if err != nil {
		return nil, herrors.TransientHost(fmt.Sprintf("dial bastion %s", bastionAddr), err)
	}

	conn, err := bastionClient.Dial("tcp", addr)
	if err != nil {
		return nil, herrors.TransientHost(fmt.Sprintf("dial %s via bastion", addr), err)
	}
	ncc, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		return nil, herrors.TransientHost(fmt.Sprintf("handshake %s via bastion", addr), err)
	}
	return ssh.NewClient(ncc, chans, reqs), nil
}

func clientConfig(user, identityPath string) (*ssh.ClientConfig, error) {
	key, err := os.ReadFile(identityPath)
	if err != nil {
		return nil, fmt.Errorf("read identity file %s: %w", identityPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", identityPath, err)
	}
	return &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // fleet hosts are not pre-enrolled; spec has no known_hosts concept
		Timeout:         10 * time.Second,
	}, nil
}

func itoa(n int) string { return fmt.Sprintf("%d", n) }

// Exec runs cmd on host, streaming stdout lines to onStdoutLine if non-nil.
func (e *SSHExecutor) Exec(ctx context.Context, host Host, cmd string, onStdoutLine func(string)) (Result, error) {
	var result Result
	err := e.runner.Do(ctx, func(ctx context.Context) error {
		client, err := dial(host)
		if err != nil {
			return err
		}
		defer client.Close()

		session, err := client.NewSession()
		if err != nil {
			return herrors.TransientHost("open ssh session", err)
		}
		defer session.Close()

		var stdout, stderr bytes.Buffer
		session.Stdout = &stdout
		session.Stderr = &stderr

		runErr := session.Run(cmd)

		if onStdoutLine != nil {
			for _, line := range splitLines(stdout.String()) {
				onStdoutLine(line)
			}
		}

		result = Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			result.ExitCode = exitErr.ExitStatus()
			return nil // non-zero exit is not a transport failure; caller inspects ExitCode
		}
		if runErr != nil {
			return herrors.TransientHost("run command", runErr)
		}
		return nil
	})
	return result, err
}

// Upload writes localPath's content to remotePath on host, skipping the
// transfer if a sha256 comparison shows remotePath already matches
// (idempotent uploads, spec §4.1).
func (e *SSHExecutor) Upload(ctx context.Context, host Host, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read local file %s: %w", localPath, err)
	}
	localSum := sha256.Sum256(data)
	localHex := hex.EncodeToString(localSum[:])

	checkResult, err := e.Exec(ctx, host, fmt.Sprintf("sha256sum %s 2>/dev/null | cut -d' ' -f1", shellQuote(remotePath)), nil)
	if err == nil && checkResult.ExitCode == 0 {
		remoteHex := firstLine(checkResult.Stdout)
		if remoteHex == localHex {
			return nil // unchanged, skip transfer
		}
	}

	return e.runner.Do(ctx, func(ctx context.Context) error {
		client, err := dial(host)
		if err != nil {
			return err
		}
		defer client.Close()

		session, err := client.NewSession()
		if err != nil {
			return herrors.TransientHost("open ssh session for upload", err)
		}
		defer session.Close()

		stdin, err := session.StdinPipe()
		if err != nil {
			return herrors.TransientHost("open stdin pipe", err)
		}

		if err := session.Start(fmt.Sprintf("mkdir -p $(dirname %s) && cat > %s", shellQuote(remotePath), shellQuote(remotePath))); err != nil {
			return herrors.TransientHost("start upload command", err)
		}

		if _, err := stdin.Write(data); err != nil {
			return herrors.TransientHost("write upload payload", err)
		}
		stdin.Close()

		if err := session.Wait(); err != nil {
			return herrors.TransientHost("upload did not complete", err)
		}
		return nil
	})
}

// Download reads remotePath from host into localPath.
func (e *SSHExecutor) Download(ctx context.Context, host Host, remotePath, localPath string) error {
	return e.runner.Do(ctx, func(ctx context.Context) error {
		client, err := dial(host)
		if err != nil {
			return err
		}
		defer client.Close()

		session, err := client.NewSession()
		if err != nil {
			return herrors.TransientHost("open ssh session for download", err)
		}
		defer session.Close()

		var stdout bytes.Buffer
		session.Stdout = &stdout
		if err := session.Run(fmt.Sprintf("cat %s", shellQuote(remotePath))); err != nil {
			return herrors.TransientHost("download command failed", err)
		}

		if err := os.WriteFile(localPath, stdout.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write local file %s: %w", localPath, err)
		}
		return nil
	})
}

// EnsureConnectivity dials the host's SSH port and returns once a TCP
// connection succeeds, or herrors.TransientHost if timeout elapses.
func (e *SSHExecutor) EnsureConnectivity(ctx context.Context, host Host, timeout time.Duration) error {
	addr := net.JoinHostPort(host.Address, itoa(host.port()))
	return retry.PollUntil(ctx, fmt.Sprintf("tcp connect %s", addr), timeout, 2*time.Second, func(ctx context.Context) (bool, error) {
		conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
		if err != nil {
			return false, nil // keep polling; connection refused/unreachable is expected while booting
		}
		conn.Close()
		return true, nil
	})
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func firstLine(s string) string {
	lines := splitLines(s)
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimRight(lines[0], "\r")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
