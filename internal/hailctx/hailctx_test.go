package hailctx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/store"
	"github.com/hailstorm-run/hailstorm/internal/workspace"
)

func TestResolveDataCenterClusterUsesStaticBackend(t *testing.T) {
	st := store.New()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	c := New(st, workspace.New(t.TempDir()), remoteexec.NewFake(), nil, nil, logger.Sugar())

	proj, _ := st.CreateProject(store.Project{Code: "p1"})
	cl, _, err := st.CreateDataCenterCluster(proj.ID, store.DataCenter{Machines: []string{"10.0.0.1"}})
	require.NoError(t, err)

	backend, clusterableID, clusterableType, err := c.Resolve(context.Background(), proj, cl)
	require.NoError(t, err)
	require.NotNil(t, backend)
	assert.Equal(t, cl.ID, clusterableID)
	assert.Equal(t, store.ClusterDataCenter, clusterableType)
}

func TestResolveUnknownClusterTypeErrors(t *testing.T) {
	st := store.New()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	c := New(st, workspace.New(t.TempDir()), remoteexec.NewFake(), nil, nil, logger.Sugar())

	proj, _ := st.CreateProject(store.Project{Code: "p2"})
	_, _, _, err = c.Resolve(context.Background(), proj, &store.Cluster{ID: 99, ProjectID: proj.ID, ClusterType: "bogus"})
	assert.Error(t, err)
}

func TestReachabilityResolverProbesKnownAgent(t *testing.T) {
	st := store.New()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	c := New(st, workspace.New(t.TempDir()), remoteexec.NewFake(), nil, nil, logger.Sugar())

	proj, _ := st.CreateProject(store.Project{Code: "p3"})
	cl, _, err := st.CreateDataCenterCluster(proj.ID, store.DataCenter{Machines: []string{"10.0.0.5"}})
	require.NoError(t, err)
	plan, err := st.UpsertPlan(store.JmeterPlan{ProjectID: proj.ID, TestPlanName: "plan", Active: true})
	require.NoError(t, err)
	agent, err := st.CreateLoadAgent(store.LoadAgent{
		ClusterableID: cl.ID, ClusterableType: store.ClusterDataCenter,
		JmeterPlanID: plan.ID, Identifier: "10.0.0.5", Active: true, JmeterPID: 1234,
	})
	require.NoError(t, err)

	resolve := c.ReachabilityResolver(proj)
	assert.NoError(t, resolve(agent.Identifier))
	assert.Error(t, resolve("unknown-id"))
}

func TestCoordinatorIsUsable(t *testing.T) {
	st := store.New()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	c := New(st, workspace.New(t.TempDir()), remoteexec.NewFake(), nil, nil, logger.Sugar())

	coord := c.Coordinator()
	assert.NotNil(t, coord)
}
