// Package agent is the Agent Manager (spec §4.3, C4): reconciles the load
// agent fleet for a JmeterPlan against a target count, deploys and drives
// JMeter on each agent, and collects results.
package agent

import (
	"context"
	"fmt"
	"path"
	"sort"

	"go.uber.org/zap"

	"github.com/hailstorm-run/hailstorm/internal/cluster"
	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/hooks"
	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Manager drives the agent fleet for one project's clusters.
type Manager struct {
	st    *store.Store
	exec  remoteexec.Executor
	hooks hooks.Hooks
	log   *zap.SugaredLogger
}

// New constructs a Manager. h may be nil, in which case lifecycle hooks
// are no-ops.
func New(st *store.Store, exec remoteexec.Executor, h hooks.Hooks, log *zap.SugaredLogger) *Manager {
	return &Manager{st: st, exec: exec, hooks: hooks.Coalesce(h), log: log}
}

// AgentsToRemove returns the surplus of agents beyond n, ordered
// lowest-priority-first: disabled agents, then active agents newest first
// (spec §4.3 step 3). Pure and side-effect free; callers decide remove vs
// stop.
func AgentsToRemove(agents []store.LoadAgent, n int) []store.LoadAgent {
	var active, disabled []store.LoadAgent
	for _, a := range agents {
		if a.Active {
			active = append(active, a)
		} else {
			disabled = append(disabled, a)
		}
	}
	surplus := len(active) - n
	if surplus <= 0 {
		return nil
	}

	sort.Slice(active, func(i, j int) bool { return active[i].ID > active[j].ID }) // newest (highest ID) first

	candidates := append(append([]store.LoadAgent{}, disabled...), active...)
	if surplus > len(candidates) {
		surplus = len(candidates)
	}
	return candidates[:surplus]
}

// Reconcile brings the active agent count for plan up or down to n,
// re-enabling disabled agents before creating new ones, and enforces the
// master/slave invariant when masterSlaveMode is set (spec §4.3).
func (m *Manager) Reconcile(ctx context.Context, backend cluster.Backend, clusterableID int64, clusterableType store.ClusterType, plan *store.JmeterPlan, n int, masterSlaveMode bool) error {
	agents := m.st.ListAgentsByPlan(plan.ID)
	var activeAgents []store.LoadAgent
	for _, a := range agents {
		if a.Active {
			activeAgents = append(activeAgents, *a)
		}
	}
	k := len(activeAgents)

	switch {
	case k < n:
		if err := m.createOrEnable(ctx, backend, clusterableID, clusterableType, plan, n-k, masterSlaveMode); err != nil {
			return err
		}
	case k > n:
		for _, surplus := range AgentsToRemove(activeAgents, n) {
			surplus := surplus
			surplus.Active = false
			if err := m.st.UpdateLoadAgent(&surplus); err != nil {
				return err
			}
		}
	}

	if masterSlaveMode {
		return m.enforceMasterSlave(plan)
	}
	return nil
}

// createOrEnable flips up to `count` disabled agents back to active, then
// provisions new ones via backend for any remainder (spec §4.3 step 2).
func (m *Manager) createOrEnable(ctx context.Context, backend cluster.Backend, clusterableID int64, clusterableType store.ClusterType, plan *store.JmeterPlan, count int, masterSlaveMode bool) error {
	disabled := m.st.ListAgentsByPlan(plan.ID)
	for _, a := range disabled {
		if count == 0 {
			break
		}
		if a.Active {
			continue
		}
		a.Active = true
		if err := m.st.UpdateLoadAgent(a); err != nil {
			return err
		}
		count--
	}

	for ; count > 0; count-- {
		host, identifier, err := backend.ProvisionHost(ctx)
		if err != nil {
			return herrors.Setup("provision agent host", err)
		}
		agentType := store.AgentMaster
		if masterSlaveMode && len(m.st.ListAgentsByPlan(plan.ID)) > 0 {
			agentType = store.AgentSlave
		}
		_, err = m.st.CreateLoadAgent(store.LoadAgent{
			ClusterableID:    clusterableID,
			ClusterableType:  clusterableType,
			JmeterPlanID:     plan.ID,
			PublicIPAddress:  host.Address,
			Active:           true,
			Type:             agentType,
			Identifier:       identifier,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// enforceMasterSlave raises MasterSlaveConflict if more than one active
// Master exists for plan (spec §4.3 step 4, invariant 3).
func (m *Manager) enforceMasterSlave(plan *store.JmeterPlan) error {
	agents := m.st.ListAgentsByPlan(plan.ID)
	masters := 0
	for _, a := range agents {
		if a.Active && a.Type == store.AgentMaster {
			masters++
		}
	}
	if masters > 1 {
		return herrors.MasterSlaveConflict(plan.TestPlanName, masters)
	}
	return nil
}

// Deploy uploads the plan file and the data files to every active agent's
// working directory, skipping files whose content hash already matches
// (idempotent uploads, spec §4.3 "Deployment"). The plan's Properties are
// not uploaded.
func (m *Manager) Deploy(ctx context.Context, backend cluster.Backend, plan *store.JmeterPlan, planFilePath string, dataFiles []string, workDir string) error {
	agents := m.activeAgents(plan.ID)
	for _, a := range agents {
		host, err := backend.HostFor(a.Identifier)
		if err != nil {
			return err
		}
		remoteDir := path.Join(workDir, fmt.Sprintf("agent-%d", a.ID))
		if err := m.exec.Upload(ctx, host, planFilePath, path.Join(remoteDir, path.Base(planFilePath))); err != nil {
			return fmt.Errorf("deploy plan to agent %d: %w", a.ID, err)
		}
		for _, df := range dataFiles {
			if err := m.exec.Upload(ctx, host, df, path.Join(remoteDir, path.Base(df))); err != nil {
				return fmt.Errorf("deploy data file %s to agent %d: %w", df, a.ID, err)
			}
		}
	}
	return nil
}

// Run starts JMeter on every Master agent (Slaves connect via RMI in
// master-slave mode) and records jmeter_pid (spec §4.3 "Run").
func (m *Manager) Run(ctx context.Context, backend cluster.Backend, plan *store.JmeterPlan, planFileName string, workDir string, masterSlaveMode bool) error {
	for _, a := range m.activeAgents(plan.ID) {
		if masterSlaveMode && a.Type != store.AgentMaster {
			continue // Slaves are started by the master's RMI connection, not independently
		}
		host, err := backend.HostFor(a.Identifier)
		if err != nil {
			return err
		}
		remoteDir := path.Join(workDir, fmt.Sprintf("agent-%d", a.ID))
		cmd := fmt.Sprintf("cd %s && nohup jmeter -n -t %s > jmeter.out 2>&1 & echo $!", remoteDir, planFileName)
		result, err := m.exec.Exec(ctx, host, cmd, nil)
		if err != nil {
			return fmt.Errorf("start jmeter on agent %d: %w", a.ID, err)
		}
		pid, perr := parsePID(result.Stdout)
		if perr != nil {
			return fmt.Errorf("parse jmeter pid on agent %d: %w", a.ID, perr)
		}
		a.JmeterPID = pid
		if err := m.st.UpdateLoadAgent(a); err != nil {
			return err
		}
	}
	return nil
}

// Stop signals JMeter on every agent that has one running, optionally
// waiting for completion, and clears jmeter_pid. If suspend is set the
// underlying host is stopped after JMeter exits and public_ip_address is
// cleared (spec §4.3 "Stop").
func (m *Manager) Stop(ctx context.Context, backend cluster.Backend, plan *store.JmeterPlan, wait, suspend, force bool) error {
	for _, a := range m.activeAgents(plan.ID) {
		if a.JmeterPID == 0 {
			continue
		}
		host, err := backend.HostFor(a.Identifier)
		if err != nil {
			return err
		}
		signal := "TERM"
		if force {
			signal = "KILL"
		}
		cmd := fmt.Sprintf("kill -%s %d", signal, a.JmeterPID)
		if wait {
			cmd = fmt.Sprintf("%s; while kill -0 %d 2>/dev/null; do sleep 1; done", cmd, a.JmeterPID)
		}
		if _, err := m.exec.Exec(ctx, host, cmd, nil); err != nil && !force {
			return fmt.Errorf("stop jmeter on agent %d: %w", a.ID, err)
		}
		if err := m.hooks.AfterStopLoadGeneration(ctx, a); err != nil {
			return fmt.Errorf("after_stop_load_generation hook for agent %d: %w", a.ID, err)
		}

		a.JmeterPID = 0
		if suspend {
			if err := backend.StopAgentHost(ctx, a.Identifier); err != nil {
				return fmt.Errorf("suspend agent %d host: %w", a.ID, err)
			}
			a.PublicIPAddress = ""
		}
		if err := m.st.UpdateLoadAgent(a); err != nil {
			return err
		}
	}
	return nil
}

// Collect pulls each Master agent's result file into
// workDir/SEQUENCE-<cycleID>/<agent-slug>.jtl (spec §4.3 "Collect").
func (m *Manager) Collect(ctx context.Context, backend cluster.Backend, plan *store.JmeterPlan, cycleID int64, remoteResultName, workDir string) ([]string, error) {
	var collected []string
	for _, a := range m.activeAgents(plan.ID) {
		if a.Type != store.AgentMaster {
			continue
		}
		host, err := backend.HostFor(a.Identifier)
		if err != nil {
			return collected, err
		}
		remoteDir := path.Join(workDir, fmt.Sprintf("agent-%d", a.ID))
		localPath := path.Join(workDir, fmt.Sprintf("SEQUENCE-%d", cycleID), fmt.Sprintf("agent-%d.jtl", a.ID))
		if err := m.exec.Download(ctx, host, path.Join(remoteDir, remoteResultName), localPath); err != nil {
			return collected, fmt.Errorf("collect results from agent %d: %w", a.ID, err)
		}
		collected = append(collected, localPath)
	}
	return collected, nil
}

// Terminate releases backend resources for every agent bound to plan and
// deletes them from the store (spec §4.3 "Terminate").
func (m *Manager) Terminate(ctx context.Context, backend cluster.Backend, plan *store.JmeterPlan) error {
	agents := m.st.ListAgentsByPlan(plan.ID)
	for _, a := range agents {
		if err := m.hooks.BeforeDestroyLoadAgent(ctx, a); err != nil {
			return fmt.Errorf("before_destroy_load_agent hook for agent %d: %w", a.ID, err)
		}
		if err := backend.TerminateAgentHost(ctx, a.Identifier); err != nil {
			return fmt.Errorf("terminate agent %d host: %w", a.ID, err)
		}
		if err := m.st.DeleteLoadAgent(a.ID); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) activeAgents(planID int64) []*store.LoadAgent {
	var out []*store.LoadAgent
	for _, a := range m.st.ListAgentsByPlan(planID) {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}

func parsePID(stdout string) (int, error) {
	var pid int
	n, err := fmt.Sscanf(trimTrailingNewline(stdout), "%d", &pid)
	if err != nil || n != 1 {
		return 0, fmt.Errorf("could not parse pid from output %q", stdout)
	}
	return pid, nil
}

func trimTrailingNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
