package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Static is the data-center-backed Backend (spec §4.2): a fixed set of
// machines, sized 1:1, validated for reachability instead of provisioned.
type Static struct {
	DataCenter *store.DataCenter
	exec       remoteexec.Executor

	claimed map[string]bool // machine -> already handed out as an agent identifier
}

// NewStatic builds a Static backend over an already-loaded DataCenter row.
func NewStatic(dc *store.DataCenter, exec remoteexec.Executor) *Static {
	return &Static{DataCenter: dc, exec: exec, claimed: make(map[string]bool)}
}

func (s *Static) userName() string {
	if s.DataCenter.UserName != "" {
		return s.DataCenter.UserName
	}
	return "ubuntu"
}

func (s *Static) hostForMachine(machine string) remoteexec.Host {
	return remoteexec.Host{Address: machine, User: s.userName(), SSHIdentity: s.DataCenter.SSHIdentity}
}

// ProvisionHost claims the next unclaimed configured machine. The
// machine's address is its identifier — there's no separate instance id
// for fixed hardware.
func (s *Static) ProvisionHost(ctx context.Context) (remoteexec.Host, string, error) {
	for _, machine := range s.DataCenter.Machines {
		if !s.claimed[machine] {
			s.claimed[machine] = true
			return s.hostForMachine(machine), machine, nil
		}
	}
	return remoteexec.Host{}, "", herrors.Configuration("no unclaimed machines left in data center cluster", nil)
}

// HostFor resolves connectivity info for a machine by its address.
func (s *Static) HostFor(identifier string) (remoteexec.Host, error) {
	for _, machine := range s.DataCenter.Machines {
		if machine == identifier {
			return s.hostForMachine(machine), nil
		}
	}
	return remoteexec.Host{}, fmt.Errorf("machine %q is not part of this data center cluster", identifier)
}

// StartAgentHost, StopAgentHost, TerminateAgentHost are no-ops: static
// machines have no power state hailstorm controls (spec §4.2.2:
// "terminate is a no-op on hosts"). TerminateAgentHost releases the claim
// so a future ProvisionHost can reuse the machine.
func (s *Static) StartAgentHost(ctx context.Context, identifier string) error { return nil }
func (s *Static) StopAgentHost(ctx context.Context, identifier string) error  { return nil }
func (s *Static) TerminateAgentHost(ctx context.Context, identifier string) error {
	delete(s.claimed, identifier)
	return nil
}

// Setup validates reachability of every configured machine (spec §4.2
// operation 1: "validated reachability for static").
func (s *Static) Setup(ctx context.Context) error {
	if len(s.DataCenter.Machines) == 0 {
		return herrors.Configuration("data center cluster has no machines configured", nil)
	}
	for _, machine := range s.DataCenter.Machines {
		if err := s.exec.EnsureConnectivity(ctx, s.hostForMachine(machine), 30*time.Second); err != nil {
			return herrors.Setup("machine "+machine+" unreachable", err)
		}
	}
	return nil
}

// RequiredAgentCount implements Backend: one agent per configured machine,
// regardless of thread count (spec §4.2: "for static: len(machines)").
func (s *Static) RequiredAgentCount(plan Plan) (int, error) {
	return len(s.DataCenter.Machines), nil
}

// MaxThreadsPerAgent has no cap for static clusters; callers should divide
// plan.NumThreads evenly across the fixed machine count instead of sizing
// the fleet from a per-agent ceiling.
func (s *Static) MaxThreadsPerAgent() int {
	return 0
}

// Release is a no-op: static machines are owned by the operator, not by
// hailstorm, so there's nothing to tear down.
func (s *Static) Release(ctx context.Context, agents []store.LoadAgent) error {
	return nil
}

var _ Backend = (*Static)(nil)
