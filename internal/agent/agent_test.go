package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hailstorm-run/hailstorm/internal/cluster"
	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

type recordingHooks struct {
	destroyed []int64
}

func (r *recordingHooks) BeforeDestroyLoadAgent(_ context.Context, a *store.LoadAgent) error {
	r.destroyed = append(r.destroyed, a.ID)
	return nil
}

func (r *recordingHooks) AfterStopLoadGeneration(context.Context, *store.LoadAgent) error {
	return nil
}

func TestAgentsToRemovePrefersDisabledThenNewest(t *testing.T) {
	agents := []store.LoadAgent{
		{ID: 1, Active: true},
		{ID: 2, Active: false},
		{ID: 3, Active: true},
		{ID: 4, Active: true},
	}
	// active count = 3 (ids 1,3,4), target 1 -> surplus 2: disabled (id 2)
	// first, then newest active (id 4).
	got := AgentsToRemove(agents, 1)
	require.Len(t, got, 2)
	assert.Equal(t, int64(2), got[0].ID)
	assert.Equal(t, int64(4), got[1].ID)
}

func TestAgentsToRemoveEmptyWhenAtOrBelowTarget(t *testing.T) {
	agents := []store.LoadAgent{{ID: 1, Active: true}, {ID: 2, Active: true}}
	assert.Empty(t, AgentsToRemove(agents, 2))
	assert.Empty(t, AgentsToRemove(agents, 5))
}

func newTestManager(t *testing.T) (*Manager, *store.Store) {
	st := store.New()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	return New(st, remoteexec.NewFake(), nil, logger.Sugar()), st
}

func TestReconcileCreatesAgentsUpToTarget(t *testing.T) {
	m, st := newTestManager(t)
	p, _ := st.CreateProject(store.Project{Code: "proj1"})
	_, dc, _ := st.CreateDataCenterCluster(p.ID, store.DataCenter{Machines: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}})
	plan, _ := st.UpsertPlan(store.JmeterPlan{ProjectID: p.ID, TestPlanName: "t1", Active: true})
	backend := cluster.NewStatic(dc, remoteexec.NewFake())

	err := m.Reconcile(context.Background(), backend, 1, store.ClusterDataCenter, plan, 2, false)
	require.NoError(t, err)

	active := m.activeAgents(plan.ID)
	assert.Len(t, active, 2)
}

func TestReconcileDisablesSurplusAgents(t *testing.T) {
	m, st := newTestManager(t)
	p, _ := st.CreateProject(store.Project{Code: "proj2"})
	_, dc, _ := st.CreateDataCenterCluster(p.ID, store.DataCenter{Machines: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}})
	plan, _ := st.UpsertPlan(store.JmeterPlan{ProjectID: p.ID, TestPlanName: "t2", Active: true})
	backend := cluster.NewStatic(dc, remoteexec.NewFake())

	require.NoError(t, m.Reconcile(context.Background(), backend, 1, store.ClusterDataCenter, plan, 3, false))
	require.NoError(t, m.Reconcile(context.Background(), backend, 1, store.ClusterDataCenter, plan, 1, false))

	assert.Len(t, m.activeAgents(plan.ID), 1)
}

func TestReconcileMasterSlaveConflictRejected(t *testing.T) {
	m, st := newTestManager(t)
	p, _ := st.CreateProject(store.Project{Code: "proj3", MasterSlaveMode: true})
	_, dc, _ := st.CreateDataCenterCluster(p.ID, store.DataCenter{Machines: []string{"10.0.0.1", "10.0.0.2"}})
	plan, _ := st.UpsertPlan(store.JmeterPlan{ProjectID: p.ID, TestPlanName: "t3", Active: true})

	_, _ = st.CreateLoadAgent(store.LoadAgent{ClusterableID: 1, ClusterableType: store.ClusterDataCenter, JmeterPlanID: plan.ID, Active: true, Type: store.AgentMaster, Identifier: "10.0.0.1"})
	_, _ = st.CreateLoadAgent(store.LoadAgent{ClusterableID: 1, ClusterableType: store.ClusterDataCenter, JmeterPlanID: plan.ID, Active: true, Type: store.AgentMaster, Identifier: "10.0.0.2"})

	backend := cluster.NewStatic(dc, remoteexec.NewFake())
	err := m.Reconcile(context.Background(), backend, 1, store.ClusterDataCenter, plan, 2, true)
	assert.Error(t, err)
}

func TestTerminateFiresBeforeDestroyLoadAgentHook(t *testing.T) {
	st := store.New()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	rec := &recordingHooks{}
	m := New(st, remoteexec.NewFake(), rec, logger.Sugar())

	p, _ := st.CreateProject(store.Project{Code: "proj4"})
	_, dc, _ := st.CreateDataCenterCluster(p.ID, store.DataCenter{Machines: []string{"10.0.0.1"}})
	plan, _ := st.UpsertPlan(store.JmeterPlan{ProjectID: p.ID, TestPlanName: "t4", Active: true})
	backend := cluster.NewStatic(dc, remoteexec.NewFake())

	require.NoError(t, m.Reconcile(context.Background(), backend, 1, store.ClusterDataCenter, plan, 1, false))
	agents := m.st.ListAgentsByPlan(plan.ID)
	require.Len(t, agents, 1)

	require.NoError(t, m.Terminate(context.Background(), backend, plan))
	assert.Equal(t, []int64{agents[0].ID}, rec.destroyed)
}
