// Package project is the Project Coordinator (spec §4.5, C7): the façade
// orchestrating C3 (cluster), C4 (agent), C5 (monitor) and C6 (cycle)
// behind setup/start/stop/abort/terminate/results/status/purge, with a
// per-project advisory lock serializing every command that changes project
// state (spec §5: "one command per project at a time"); the read-only
// Show, Status and Export run without it.
package project

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hailstorm-run/hailstorm/internal/agent"
	"github.com/hailstorm-run/hailstorm/internal/audit"
	"github.com/hailstorm-run/hailstorm/internal/cluster"
	"github.com/hailstorm-run/hailstorm/internal/cycle"
	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/monitor"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Config is the set of configuration inputs setup() reconciles against
// (spec §6 "Configuration inputs").
type Config struct {
	JMeterVersion       string
	CustomInstallerURL  string
	MasterSlaveMode     bool
	PlanFilePaths       map[int64]string // JmeterPlan.ID -> local path to the .jmx being deployed
	DataFiles           []string
	WorkDir             string
}

// serialVersion derives a stable hash of cfg so setup() can skip redundant
// remote mutations when nothing changed (spec §4.5 setup(force), invariant
// "calling setup twice with unchanged config performs cloud mutations only
// the first time").
func serialVersion(cfg Config) (string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("hash config: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// BackendResolver builds the cluster.Backend for a cluster row. Kept
// external to Coordinator because constructing an Elastic backend needs
// per-cluster AWS credentials/region, resolved by the caller's context
// object (spec §9 design note: "explicit context object ... store handle,
// file-store adapter, remote executor, logger, config snapshot").
type BackendResolver interface {
	Resolve(ctx context.Context, project *store.Project, c *store.Cluster) (cluster.Backend, int64, store.ClusterType, error)
}

// Coordinator is the C7 façade.
type Coordinator struct {
	st       *store.Store
	backends BackendResolver
	agentMgr *agent.Manager
	monMgr   *monitor.Manager
	cycleCtl *cycle.Controller
	auditLog audit.Logger
	log      *zap.SugaredLogger
	reporter Reporter

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// New constructs a Coordinator. auditLog may be nil, in which case command
// history is not recorded.
func New(st *store.Store, backends BackendResolver, agentMgr *agent.Manager, monMgr *monitor.Manager, auditLog audit.Logger, log *zap.SugaredLogger) *Coordinator {
	return &Coordinator{
		st: st, backends: backends, agentMgr: agentMgr, monMgr: monMgr,
		cycleCtl: cycle.New(st), auditLog: auditLog, log: log, locks: make(map[int64]*sync.Mutex),
	}
}

// record is a nil-safe LogCommand call, so Coordinator works without an
// audit logger wired in (e.g. in tests that don't care about history).
func (c *Coordinator) record(action audit.EventAction, project *store.Project, description string, success bool) {
	if c.auditLog == nil {
		return
	}
	_, _ = c.auditLog.LogCommand(project.Code, "hailstorm", description, action, success, nil)
}

// lockFor returns (creating if needed) the advisory lock for projectID.
func (c *Coordinator) lockFor(projectID int64) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[projectID] = l
	}
	return l
}

// withProjectLock runs fn holding projectID's advisory lock, so at most one
// command runs against a project at a time (spec §5).
func (c *Coordinator) withProjectLock(projectID int64, fn func() error) error {
	l := c.lockFor(projectID)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// Setup reconciles cloud/static prerequisites for every cluster and target
// host, re-running only if cfg's hash differs from the stored
// serial_version or force is set (spec §4.5 setup(force)).
func (c *Coordinator) Setup(ctx context.Context, project *store.Project, cfg Config, force bool) error {
	return c.withProjectLock(project.ID, func() error {
		oldVersion := project.SerialVersion
		err := c.setupLocked(ctx, project, cfg, force)
		c.record(audit.ActionSetup, project, "setup", err == nil)
		if err == nil && c.auditLog != nil && project.SerialVersion != oldVersion {
			_, _ = c.auditLog.LogConfiguration(project.Code, "hailstorm", oldVersion, project.SerialVersion)
		}
		return err
	})
}

func (c *Coordinator) setupLocked(ctx context.Context, project *store.Project, cfg Config, force bool) error {
	newVersion, err := serialVersion(cfg)
	if err != nil {
		return herrors.Configuration("compute serial_version", err)
	}
	if !force && project.SerialVersion == newVersion {
		return nil // unchanged: zero remote mutations (spec scenario S2)
	}

	if err := c.validateJMeterConfig(cfg); err != nil {
		c.nullSerialVersion(project)
		return err
	}

	_ = c.st.ListActivePlans(project.ID) // load plans: step 1 of setup()

	var setupErrs []error
	for _, cl := range c.st.ListClusters(project.ID) {
		backend, _, _, err := c.backends.Resolve(ctx, project, cl)
		if err != nil {
			setupErrs = append(setupErrs, err)
			continue
		}
		if err := backend.Setup(ctx); err != nil {
			setupErrs = append(setupErrs, fmt.Errorf("cluster %d: %w", cl.ID, err))
		}
	}

	for _, target := range c.st.ListTargetHosts(project.ID) {
		if err := c.monMgr.Install(ctx, target); err != nil {
			setupErrs = append(setupErrs, fmt.Errorf("target %s: %w", target.HostName, err))
		}
	}

	if len(setupErrs) > 0 {
		c.nullSerialVersion(project)
		return herrors.Setup(fmt.Sprintf("%d cluster/target setup failure(s)", len(setupErrs)), joinErrors(setupErrs))
	}

	project.SerialVersion = newVersion
	return c.st.UpdateProject(project)
}

// nullSerialVersion clears project's serial_version and deactivates every
// currently-active LoadAgent for it, so invariant 2 (spec §8: "if
// serial_version is null, no agents should be active") never momentarily
// breaks between a setup failure and the next reconciliation. A prior
// start+stop cycle can leave agents Active=true with no cycle running
// (stop without --suspend); if setup then fails on a later config, those
// agents would otherwise be orphaned as active with a null serial_version.
func (c *Coordinator) nullSerialVersion(project *store.Project) {
	project.SerialVersion = ""
	_ = c.st.UpdateProject(project)

	for _, a := range c.st.ListActiveAgentsByProject(project.ID) {
		a.Active = false
		_ = c.st.UpdateLoadAgent(a)
	}
}

func (c *Coordinator) validateJMeterConfig(cfg Config) error {
	if cfg.JMeterVersion == "" && cfg.CustomInstallerURL == "" {
		return herrors.Configuration("jmeter.version or jmeter.custom_installer_url is required", nil)
	}
	return nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	msg := errs[0].Error()
	for _, e := range errs[1:] {
		msg += "; " + e.Error()
	}
	return fmt.Errorf("%s", msg)
}

// Start refuses if a cycle is already started, otherwise creates one,
// implicitly runs setup, starts monitors, then generates load. A failure
// in either phase moves the cycle to aborted (spec §4.5 start(redeploy)).
func (c *Coordinator) Start(ctx context.Context, project *store.Project, cfg Config, redeploy bool) (cyc *store.ExecutionCycle, rerr error) {
	err := c.withProjectLock(project.ID, func() error {
		var innerErr error
		cyc, innerErr = c.startLocked(ctx, project, cfg, redeploy)
		return innerErr
	})
	c.record(audit.ActionStart, project, "start", err == nil)
	return cyc, err
}

func (c *Coordinator) startLocked(ctx context.Context, project *store.Project, cfg Config, redeploy bool) (*store.ExecutionCycle, error) {
	cyc, err := c.cycleCtl.Begin(project)
	if err != nil {
		return nil, err
	}

	if err := c.setupLocked(ctx, project, cfg, false); err != nil {
		c.abortCycle(cyc.ID)
		return nil, err
	}

	targets := c.st.ListTargetHosts(project.ID)
	for _, target := range targets {
		if err := c.monMgr.StartMonitoring(ctx, cyc.ID, target); err != nil {
			c.abortCycle(cyc.ID)
			return nil, herrors.Setup("start monitors", err)
		}
	}

	if err := c.generateLoad(ctx, project, cfg, redeploy); err != nil {
		c.abortCycle(cyc.ID)
		return nil, err
	}

	return cyc, nil
}

func (c *Coordinator) abortCycle(cycleID int64) {
	_, _ = c.cycleCtl.Abort(cycleID)
}

func (c *Coordinator) generateLoad(ctx context.Context, project *store.Project, cfg Config, redeploy bool) error {
	for _, cl := range c.st.ListClusters(project.ID) {
		backend, clusterableID, clusterableType, err := c.backends.Resolve(ctx, project, cl)
		if err != nil {
			return err
		}
		for _, plan := range c.st.ListActivePlans(project.ID) {
			n, err := backend.RequiredAgentCount(cluster.Plan{ID: plan.ID, NumThreads: plan.LatestThreadsCount})
			if err != nil {
				return err
			}
			if err := c.agentMgr.Reconcile(ctx, backend, clusterableID, clusterableType, plan, n, cfg.MasterSlaveMode); err != nil {
				return err
			}
			if redeploy {
				if planPath, ok := cfg.PlanFilePaths[plan.ID]; ok {
					if err := c.agentMgr.Deploy(ctx, backend, plan, planPath, cfg.DataFiles, cfg.WorkDir); err != nil {
						return err
					}
				}
			}
			planFileName := "plan.jmx"
			if planPath, ok := cfg.PlanFilePaths[plan.ID]; ok {
				planFileName = baseName(planPath)
			}
			if err := c.agentMgr.Run(ctx, backend, plan, planFileName, cfg.WorkDir, cfg.MasterSlaveMode); err != nil {
				return err
			}
		}
	}
	return nil
}

func baseName(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[i+1:]
		}
	}
	return p
}

// Stop requires a started cycle. It stops load generation, then monitors
// (always attempted, even if load-stop fails). Success -> stopped; a
// load-stop error -> aborted, with monitors still stopped and
// create_target_stat=false (spec §4.5 stop(wait, suspend), scenario S5).
func (c *Coordinator) Stop(ctx context.Context, project *store.Project, wait, suspend bool) error {
	err := c.withProjectLock(project.ID, func() error {
		return c.stopOrAbort(ctx, project, wait, suspend, false)
	})
	c.record(audit.ActionStop, project, "stop", err == nil)
	return err
}

// Abort is Stop with force=true on load-generation and
// create_target_stat=false on monitors; the cycle always ends aborted
// (spec §4.5 abort(suspend)).
func (c *Coordinator) Abort(ctx context.Context, project *store.Project, suspend bool) error {
	err := c.withProjectLock(project.ID, func() error {
		return c.stopOrAbort(ctx, project, false, suspend, true)
	})
	c.record(audit.ActionAbort, project, "abort", err == nil)
	return err
}

func (c *Coordinator) stopOrAbort(ctx context.Context, project *store.Project, wait, suspend, force bool) error {
	cyc, err := c.cycleCtl.Current(project)
	if err != nil {
		return err
	}

	var loadErr error
	for _, cl := range c.st.ListClusters(project.ID) {
		backend, _, _, err := c.backends.Resolve(ctx, project, cl)
		if err != nil {
			loadErr = err
			continue
		}
		for _, plan := range c.st.ListActivePlans(project.ID) {
			if err := c.agentMgr.Stop(ctx, backend, plan, wait, suspend, force); err != nil {
				loadErr = err
			}
		}
	}

	createTargetStat := !force && loadErr == nil
	for _, target := range c.st.ListTargetHosts(project.ID) {
		_, _ = c.monMgr.StopMonitoring(ctx, target, createTargetStat) // guaranteed: always attempted
	}

	if force {
		_, _ = c.cycleCtl.Abort(cyc.ID)
		return loadErr
	}
	if loadErr != nil {
		_, _ = c.cycleCtl.Abort(cyc.ID)
		return loadErr
	}
	_, err = c.cycleCtl.Stop(cyc.ID)
	return err
}

// Terminate releases every cluster's backend resources, clears
// serial_version, and moves any current cycle to terminated (spec §4.5
// terminate()).
func (c *Coordinator) Terminate(ctx context.Context, project *store.Project) error {
	err := c.withProjectLock(project.ID, func() error {
		for _, cl := range c.st.ListClusters(project.ID) {
			backend, _, _, err := c.backends.Resolve(ctx, project, cl)
			if err != nil {
				return err
			}
			for _, plan := range c.st.ListActivePlans(project.ID) {
				if err := c.agentMgr.Terminate(ctx, backend, plan); err != nil {
					return err
				}
			}
			agents := c.st.ListActiveAgentsByProject(project.ID)
			storeAgents := make([]store.LoadAgent, 0, len(agents))
			for _, a := range agents {
				storeAgents = append(storeAgents, *a)
			}
			if err := backend.Release(ctx, storeAgents); err != nil {
				return err
			}
		}

		project.SerialVersion = ""
		if err := c.st.UpdateProject(project); err != nil {
			return err
		}

		if cyc, ok := c.st.CurrentCycle(project.ID); ok {
			_, err := c.cycleCtl.Terminate(cyc.ID)
			return err
		}
		return nil
	})
	c.record(audit.ActionTerminate, project, "terminate", err == nil)
	return err
}

// AgentStatus is one row of Status()'s result.
type AgentStatus struct {
	AgentID   int64
	PlanID    int64
	JmeterPID int
	Reachable bool
}

// Status lists agents with a running jmeter_pid by probing Master agents
// in parallel, returning an empty slice if there's no current cycle
// (spec §4.5 status()).
func (c *Coordinator) Status(ctx context.Context, project *store.Project, resolver func(identifier string) error) ([]AgentStatus, error) {
	if _, ok := c.st.CurrentCycle(project.ID); !ok {
		return nil, nil
	}

	agents := c.st.ListActiveAgentsByProject(project.ID)
	statuses := make([]AgentStatus, len(agents))
	g, _ := errgroup.WithContext(ctx)

	for i, a := range agents {
		i, a := i, a
		if a.JmeterPID == 0 {
			statuses[i] = AgentStatus{AgentID: a.ID, PlanID: a.JmeterPlanID, JmeterPID: 0}
			continue
		}
		g.Go(func() error {
			reachable := true
			if resolver != nil {
				reachable = resolver(a.Identifier) == nil
			}
			statuses[i] = AgentStatus{AgentID: a.ID, PlanID: a.JmeterPlanID, JmeterPID: a.JmeterPID, Reachable: reachable}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var running []AgentStatus
	for _, s := range statuses {
		if s.JmeterPID != 0 {
			running = append(running, s)
		}
	}
	return running, nil
}

// PurgeScope discriminates purge()'s two modes.
type PurgeScope string

const (
	PurgeTests PurgeScope = "tests"
	PurgeAll   PurgeScope = "all"
)

// Purge destroys execution cycles and stats (tests) or the whole project
// row, cascading everything (all) — spec §4.5 purge(scope).
func (c *Coordinator) Purge(project *store.Project, scope PurgeScope) error {
	err := c.withProjectLock(project.ID, func() error {
		switch scope {
		case PurgeTests:
			return c.st.PurgeProjectTests(project.ID)
		case PurgeAll:
			return c.st.PurgeProjectAll(project.ID)
		default:
			return herrors.Configuration(fmt.Sprintf("unknown purge scope %q", scope), nil)
		}
	})
	c.record(audit.ActionPurge, project, fmt.Sprintf("purge(%s)", scope), err == nil)
	return err
}
