package cluster

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

func TestStaticRequiredAgentCountIsMachineCount(t *testing.T) {
	dc := &store.DataCenter{Machines: []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"}}
	s := NewStatic(dc, remoteexec.NewFake())

	n, err := s.RequiredAgentCount(Plan{NumThreads: 9999})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestStaticSetupRejectsEmptyMachineList(t *testing.T) {
	s := NewStatic(&store.DataCenter{}, remoteexec.NewFake())
	err := s.Setup(context.Background())
	assert.Error(t, err)
}

func TestStaticSetupChecksEveryMachine(t *testing.T) {
	fake := remoteexec.NewFake()
	dc := &store.DataCenter{Machines: []string{"10.0.0.1", "10.0.0.2"}, UserName: "deploy"}
	s := NewStatic(dc, fake)

	require.NoError(t, s.Setup(context.Background()))
}

func TestStaticReleaseIsNoOp(t *testing.T) {
	s := NewStatic(&store.DataCenter{Machines: []string{"10.0.0.1"}}, remoteexec.NewFake())
	assert.NoError(t, s.Release(context.Background(), []store.LoadAgent{{ID: 1}}))
}

func TestStaticProvisionHostClaimsEachMachineOnce(t *testing.T) {
	dc := &store.DataCenter{Machines: []string{"10.0.0.1", "10.0.0.2"}}
	s := NewStatic(dc, remoteexec.NewFake())

	_, id1, err := s.ProvisionHost(context.Background())
	require.NoError(t, err)
	_, id2, err := s.ProvisionHost(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	_, _, err = s.ProvisionHost(context.Background())
	assert.Error(t, err, "a third claim should fail: only two machines configured")
}

func TestStaticTerminateAgentHostReleasesClaim(t *testing.T) {
	dc := &store.DataCenter{Machines: []string{"10.0.0.1"}}
	s := NewStatic(dc, remoteexec.NewFake())

	_, id, err := s.ProvisionHost(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.TerminateAgentHost(context.Background(), id))

	_, _, err = s.ProvisionHost(context.Background())
	assert.NoError(t, err, "machine should be reclaimable after termination")
}
