package remoteexec

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fake is an in-memory Executor used by tests across the engine packages
// that depend on remoteexec.Executor, so they can assert on exec history
// without opening real SSH connections.
type Fake struct {
	mu       sync.Mutex
	Files    map[string][]byte // "address:path" -> content
	Commands []string          // every command passed to Exec, in order
	OnExec   func(host Host, cmd string) (Result, error)
}

// NewFake constructs an empty fake executor.
func NewFake() *Fake {
	return &Fake{Files: make(map[string][]byte)}
}

func fileKey(host Host, path string) string {
	return fmt.Sprintf("%s:%s", host.Address, path)
}

func (f *Fake) Exec(ctx context.Context, host Host, cmd string, onStdoutLine func(string)) (Result, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, cmd)
	f.mu.Unlock()

	if f.OnExec != nil {
		return f.OnExec(host, cmd)
	}
	return Result{ExitCode: 0}, nil
}

func (f *Fake) Upload(ctx context.Context, host Host, localPath, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Files[fileKey(host, remotePath)] = []byte(localPath)
	return nil
}

func (f *Fake) Download(ctx context.Context, host Host, remotePath, localPath string) error {
	return nil
}

func (f *Fake) EnsureConnectivity(ctx context.Context, host Host, timeout time.Duration) error {
	return nil
}

var _ Executor = (*Fake)(nil)
