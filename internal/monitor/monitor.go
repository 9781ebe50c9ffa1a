// Package monitor is the Target Monitor Manager (spec §4.4, C5): a uniform
// interface over server-side monitoring backends (e.g. nmon), sampling each
// target host on its own loop and summarizing to a TargetStat on stop.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Sampler abstracts one monitor backend's wire format: the remote command
// that prints a single sample, and how to parse its output into
// (cpu%, mem%, swap%).
type Sampler interface {
	Name() string
	InstallCommand(execPath string) string
	SampleCommand(execPath string) string
	Parse(output string) (cpu, mem, swap float64, err error)
}

// Manager drives sampling sessions for target hosts.
type Manager struct {
	st   *store.Store
	exec remoteexec.Executor
	log  *zap.SugaredLogger

	mu       sync.Mutex
	sessions map[int64]*session // target host ID -> running session
}

type session struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	cpu  []float64
	mem  []float64
	swap []float64

	cycleID int64
	failed  bool
}

// New constructs a Manager.
func New(st *store.Store, exec remoteexec.Executor, log *zap.SugaredLogger) *Manager {
	return &Manager{st: st, exec: exec, sessions: make(map[int64]*session), log: log}
}

func (m *Manager) host(target *store.TargetHost) remoteexec.Host {
	user := target.UserName
	if user == "" {
		user = "root"
	}
	return remoteexec.Host{Address: target.HostName, User: user, SSHIdentity: target.SSHIdentity}
}

func samplerFor(target *store.TargetHost) (Sampler, error) {
	switch target.Type {
	case "", "nmon":
		return NmonSampler{}, nil
	default:
		return nil, fmt.Errorf("unknown monitor type %q", target.Type)
	}
}

// Install ensures the monitor binary is present on target (spec §4.4
// "install").
func (m *Manager) Install(ctx context.Context, target *store.TargetHost) error {
	sampler, err := samplerFor(target)
	if err != nil {
		return err
	}
	execPath := target.ExecutablePath
	if execPath == "" {
		execPath = "/usr/bin/" + sampler.Name()
	}
	host := m.host(target)

	check, err := m.exec.Exec(ctx, host, fmt.Sprintf("test -x %s", execPath), nil)
	if err == nil && check.ExitCode == 0 {
		target.ExecutablePath = execPath
		return m.st.UpdateTargetHost(target)
	}

	result, err := m.exec.Exec(ctx, host, sampler.InstallCommand(execPath), nil)
	if err != nil {
		return fmt.Errorf("install %s on %s: %w", sampler.Name(), target.HostName, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("install %s on %s exited %d: %s", sampler.Name(), target.HostName, result.ExitCode, result.Stderr)
	}

	target.ExecutablePath = execPath
	return m.st.UpdateTargetHost(target)
}

// StartMonitoring begins the per-host sampling loop for target, bound to
// cycleID so StopMonitoring can attribute the resulting TargetStat
// (spec §4.4).
func (m *Manager) StartMonitoring(ctx context.Context, cycleID int64, target *store.TargetHost) error {
	sampler, err := samplerFor(target)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if _, exists := m.sessions[target.ID]; exists {
		m.mu.Unlock()
		return nil // already running: start_monitoring is idempotent
	}
	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{cancel: cancel, done: make(chan struct{}), cycleID: cycleID}
	m.sessions[target.ID] = sess
	m.mu.Unlock()

	interval := target.SamplingInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}

	host := m.host(target)
	go m.sampleLoop(sessCtx, sess, host, sampler, target, interval)

	target.Active = true
	return m.st.UpdateTargetHost(target)
}

func (m *Manager) sampleLoop(ctx context.Context, sess *session, host remoteexec.Host, sampler Sampler, target *store.TargetHost, interval time.Duration) {
	defer close(sess.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := m.exec.Exec(ctx, host, sampler.SampleCommand(target.ExecutablePath), nil)
			if err != nil {
				sess.mu.Lock()
				sess.failed = true
				sess.mu.Unlock()
				if m.log != nil {
					m.log.Warnw("monitor sample failed", "target", target.HostName, "err", err)
				}
				continue
			}
			cpu, mem, swap, perr := sampler.Parse(result.Stdout)
			if perr != nil {
				sess.mu.Lock()
				sess.failed = true
				sess.mu.Unlock()
				continue
			}
			sess.mu.Lock()
			sess.cpu = append(sess.cpu, cpu)
			sess.mem = append(sess.mem, mem)
			sess.swap = append(sess.swap, swap)
			sess.mu.Unlock()
		}
	}
}

// StopMonitoring stops sampling target and, if createTargetStat, persists
// the summarized TargetStat (avg cpu/mem/swap plus trend). Passing
// createTargetStat=false still stops the loop but produces no stat row —
// used when load-generation stop failed, to avoid biased stats
// (spec §4.4).
func (m *Manager) StopMonitoring(ctx context.Context, target *store.TargetHost, createTargetStat bool) (*store.TargetStat, error) {
	m.mu.Lock()
	sess, ok := m.sessions[target.ID]
	if ok {
		delete(m.sessions, target.ID)
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil // already stopped: idempotent
	}

	sess.cancel()
	<-sess.done

	target.Active = false
	if err := m.st.UpdateTargetHost(target); err != nil {
		return nil, err
	}

	if !createTargetStat {
		return nil, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	stat := store.TargetStat{
		ExecutionCycleID:   sess.cycleID,
		TargetHostID:       target.ID,
		AverageCPUUsage:    average(sess.cpu),
		AverageMemoryUsage: average(sess.mem),
		AverageSwapUsage:   average(sess.swap),
		CPUUsageTrend:      sess.cpu,
		MemoryUsageTrend:   sess.mem,
		SwapUsageTrend:     sess.swap,
	}
	return m.st.CreateTargetStat(stat)
}

// Terminate stops monitoring (if still running, without producing a stat)
// and best-effort kills the remote monitor process (spec §4.4
// "terminate").
func (m *Manager) Terminate(ctx context.Context, target *store.TargetHost) error {
	if _, err := m.StopMonitoring(ctx, target, false); err != nil {
		return err
	}
	sampler, err := samplerFor(target)
	if err != nil {
		return err
	}
	_, _ = m.exec.Exec(ctx, m.host(target), fmt.Sprintf("pkill -f %s || true", sampler.Name()), nil)
	return nil
}

func average(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		sum += v
	}
	return sum / float64(len(samples))
}
