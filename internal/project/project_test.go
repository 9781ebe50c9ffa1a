package project

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hailstorm-run/hailstorm/internal/agent"
	"github.com/hailstorm-run/hailstorm/internal/audit"
	"github.com/hailstorm-run/hailstorm/internal/cluster"
	"github.com/hailstorm-run/hailstorm/internal/monitor"
	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// staticResolver resolves every cluster row to a Static backend over its
// DataCenter row, for tests that don't need real AWS calls.
type staticResolver struct {
	st   *store.Store
	exec remoteexec.Executor
}

func (r *staticResolver) Resolve(ctx context.Context, project *store.Project, c *store.Cluster) (cluster.Backend, int64, store.ClusterType, error) {
	dc, err := r.st.GetDataCenter(c.ID)
	if err != nil {
		return nil, 0, "", err
	}
	return cluster.NewStatic(dc, r.exec), c.ID, store.ClusterDataCenter, nil
}

func newTestCoordinator(t *testing.T) (*Coordinator, *store.Store) {
	st := store.New()
	exec := remoteexec.NewFake()
	exec.OnExec = func(host remoteexec.Host, cmd string) (remoteexec.Result, error) {
		return remoteexec.Result{Stdout: "123\n", ExitCode: 0}, nil
	}
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	sugar := logger.Sugar()

	resolver := &staticResolver{st: st, exec: exec}
	agentMgr := agent.New(st, exec, nil, sugar)
	monMgr := monitor.New(st, exec, sugar)
	auditLog := audit.NewInMemoryLogger(0)
	return New(st, resolver, agentMgr, monMgr, auditLog, sugar), st
}

func baseConfig() Config {
	return Config{JMeterVersion: "5.5", WorkDir: "/tmp/hailstorm"}
}

func TestSetupIsIdempotentOnUnchangedConfig(t *testing.T) {
	c, st := newTestCoordinator(t)
	p, _ := st.CreateProject(store.Project{Code: "p1"})
	_, _, _ = st.CreateDataCenterCluster(p.ID, store.DataCenter{Machines: []string{"10.0.0.1"}})

	cfg := baseConfig()
	require.NoError(t, c.Setup(context.Background(), p, cfg, false))

	got, _ := st.GetProjectByCode("p1")
	firstVersion := got.SerialVersion
	assert.NotEmpty(t, firstVersion)

	require.NoError(t, c.Setup(context.Background(), p, cfg, false))
	got, _ = st.GetProjectByCode("p1")
	assert.Equal(t, firstVersion, got.SerialVersion)
}

func TestSetupRejectsMissingJMeterVersion(t *testing.T) {
	c, st := newTestCoordinator(t)
	p, _ := st.CreateProject(store.Project{Code: "p2"})

	err := c.Setup(context.Background(), p, Config{}, false)
	assert.Error(t, err)

	got, _ := st.GetProjectByCode("p2")
	assert.Empty(t, got.SerialVersion, "failed setup must null serial_version")
}

func TestStartRefusesWhileCycleStarted(t *testing.T) {
	c, st := newTestCoordinator(t)
	p, _ := st.CreateProject(store.Project{Code: "p3"})
	_, _, _ = st.CreateDataCenterCluster(p.ID, store.DataCenter{Machines: []string{"10.0.0.1"}})
	plan, _ := st.UpsertPlan(store.JmeterPlan{ProjectID: p.ID, TestPlanName: "t1", Active: true, LatestThreadsCount: 10})
	_ = plan

	cfg := baseConfig()
	_, err := c.Start(context.Background(), p, cfg, true)
	require.NoError(t, err)

	_, err = c.Start(context.Background(), p, cfg, true)
	assert.Error(t, err)
}

func TestStopTransitionsCycleToStopped(t *testing.T) {
	c, st := newTestCoordinator(t)
	p, _ := st.CreateProject(store.Project{Code: "p4"})
	_, _, _ = st.CreateDataCenterCluster(p.ID, store.DataCenter{Machines: []string{"10.0.0.1"}})
	st.UpsertPlan(store.JmeterPlan{ProjectID: p.ID, TestPlanName: "t1", Active: true, LatestThreadsCount: 10})

	cfg := baseConfig()
	_, err := c.Start(context.Background(), p, cfg, true)
	require.NoError(t, err)

	require.NoError(t, c.Stop(context.Background(), p, false, false))

	cyc, ok := st.CurrentCycle(p.ID)
	assert.False(t, ok, "a stopped cycle must not be current")
	_ = cyc
}

// TestSetupFailureDeactivatesActiveAgents is a regression test for spec §8
// invariant 2 ("if serial_version is null, no agents should be active"):
// start+stop without --suspend leaves agents Active=true with no running
// cycle; a later setup() that fails validation must not leave those
// agents active alongside the nulled serial_version.
func TestSetupFailureDeactivatesActiveAgents(t *testing.T) {
	c, st := newTestCoordinator(t)
	p, _ := st.CreateProject(store.Project{Code: "p4b"})
	_, _, _ = st.CreateDataCenterCluster(p.ID, store.DataCenter{Machines: []string{"10.0.0.1"}})
	st.UpsertPlan(store.JmeterPlan{ProjectID: p.ID, TestPlanName: "t1", Active: true, LatestThreadsCount: 10})

	cfg := baseConfig()
	require.NoError(t, c.Setup(context.Background(), p, cfg, false))
	_, err := c.Start(context.Background(), p, cfg, true)
	require.NoError(t, err)
	require.NoError(t, c.Stop(context.Background(), p, false, false))

	require.NotEmpty(t, st.ListActiveAgentsByProject(p.ID), "agents should still be active after a stop without --suspend")

	err = c.Setup(context.Background(), p, Config{}, true)
	assert.Error(t, err, "setup with an invalid config must fail validation")

	p, err = st.GetProjectByCode("p4b")
	require.NoError(t, err)
	assert.Empty(t, p.SerialVersion, "a failed setup must null serial_version")
	assert.Empty(t, st.ListActiveAgentsByProject(p.ID), "invariant 2: no agent may remain active once serial_version is null")
}

func TestPurgeAllRemovesProject(t *testing.T) {
	c, st := newTestCoordinator(t)
	p, _ := st.CreateProject(store.Project{Code: "p5"})

	require.NoError(t, c.Purge(p, PurgeAll))

	_, err := st.GetProjectByCode("p5")
	assert.Error(t, err)
}

func TestCommandsAreRecordedInAuditHistory(t *testing.T) {
	st := store.New()
	exec := remoteexec.NewFake()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	sugar := logger.Sugar()

	resolver := &staticResolver{st: st, exec: exec}
	agentMgr := agent.New(st, exec, nil, sugar)
	monMgr := monitor.New(st, exec, sugar)
	auditLog := audit.NewInMemoryLogger(0)
	c := New(st, resolver, agentMgr, monMgr, auditLog, sugar)

	p, _ := st.CreateProject(store.Project{Code: "p6"})
	require.NoError(t, c.Setup(context.Background(), p, baseConfig(), false))
	require.NoError(t, c.Purge(p, PurgeAll))

	events := auditLog.Query(&audit.AuditFilter{ResourceID: "p6", Types: []audit.EventType{audit.EventTypeCommand}})
	require.Len(t, events, 2)
	assert.Equal(t, audit.ActionPurge, events[0].Action)
	assert.Equal(t, audit.ActionSetup, events[1].Action)
}
