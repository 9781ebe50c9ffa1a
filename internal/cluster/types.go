// Package cluster implements the cluster backend abstraction (spec §4.2,
// C3): a closed variant over Elastic (AWS) and Static (data center) backends
// sharing one reconciliation contract, modeled the way the teacher models
// its cloud providers (pkg/providers) — a capability interface plus a
// per-kind implementation, not open inheritance.
package cluster

import (
	"context"
	"math"

	"github.com/hailstorm-run/hailstorm/internal/remoteexec"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Plan is the subset of a JmeterPlan the backend needs to size a fleet.
type Plan struct {
	ID         int64
	NumThreads int
}

// Backend is the capability interface every cluster kind implements
// (spec §4.2 operations 1-7).
type Backend interface {
	// Setup reconciles cloud/static prerequisites: security group, key pair,
	// AMI, availability zone for Elastic; validated reachability for Static.
	Setup(ctx context.Context) error

	// RequiredAgentCount returns how many load agents plan needs.
	RequiredAgentCount(plan Plan) (int, error)

	// MaxThreadsPerAgent returns the per-agent thread ceiling this backend
	// will size plans against.
	MaxThreadsPerAgent() int

	// Release tears down backend-owned resources. agents is the current
	// fleet known to the caller; Release only acts on what it owns.
	Release(ctx context.Context, agents []store.LoadAgent) error

	// ProvisionHost brings up one new agent host (launches an EC2 instance
	// for Elastic; claims the next unused machine for Static) and returns
	// its connectivity info and a stable identifier.
	ProvisionHost(ctx context.Context) (remoteexec.Host, string, error)

	// HostFor resolves connectivity info for an already-provisioned agent
	// by its identifier.
	HostFor(identifier string) (remoteexec.Host, error)

	// StartAgentHost, StopAgentHost and TerminateAgentHost implement the
	// per-agent host state machine (spec §4.2.1): idempotent, no-ops if
	// already in the target state, silently ignoring missing hosts.
	StartAgentHost(ctx context.Context, identifier string) error
	StopAgentHost(ctx context.Context, identifier string) error
	TerminateAgentHost(ctx context.Context, identifier string) error
}

// defaultMaxThreadsBySize is the base (pre-rounding) thread ceiling by
// instance size, used when a cluster's max_threads_by_instance is unset.
// Monotonic non-decreasing across the canonical size ordering (spec
// invariant 6), strictly within [3, 10000].
var defaultMaxThreadsBySize = map[string]int{
	"nano":     3,
	"micro":    6,
	"small":    12,
	"medium":   25,
	"large":    50,
	"xlarge":   100,
	"2xlarge":  200,
	"4xlarge":  400,
	"8xlarge":  800,
	"9xlarge":  900,
	"12xlarge": 1200,
	"16xlarge": 1600,
	"18xlarge": 1800,
	"24xlarge": 2400,
	"metal":    3200,
}

// DefaultMaxThreadsPerAgent derives a base thread ceiling from an EC2-style
// "<family>.<size>" instance type when a cluster doesn't specify one
// explicitly, clamped to [3, 10000].
func DefaultMaxThreadsPerAgent(instanceType string) int {
	size := instanceType
	if idx := lastDot(instanceType); idx >= 0 {
		size = instanceType[idx+1:]
	}
	base, ok := defaultMaxThreadsBySize[size]
	if !ok {
		base = 50 // unknown size: fall back to the "large" tier's ceiling
	}
	if base < 3 {
		base = 3
	}
	if base > 10000 {
		base = 10000
	}
	return base
}

func lastDot(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '.' {
			return i
		}
	}
	return -1
}

// RoundOffMaxThreadsPerAgent rounds x to the nearest value in the band's
// unit, ties rounding up (spec invariant 5 + boundary table):
//
//	x ≤ 10  -> nearest multiple of 5
//	x ≤ 50  -> nearest multiple of 10
//	x > 50  -> nearest multiple of 50
//
// A positive x that would round down to 0 yields the band's unit instead,
// so f(x) >= x for x <= 5.
//
// Idempotent: RoundOffMaxThreadsPerAgent(f(x)) == f(x).
func RoundOffMaxThreadsPerAgent(x int) int {
	if x <= 0 {
		return 0
	}
	unit := 50
	switch {
	case x <= 10:
		unit = 5
	case x <= 50:
		unit = 10
	}
	r := roundHalfUpToMultiple(x, unit)
	if r < unit {
		r = unit
	}
	return r
}

func roundHalfUpToMultiple(x, unit int) int {
	return int(math.Floor(float64(x)/float64(unit)+0.5)) * unit
}

// RequiredAgentCount implements the shared elastic sizing formula:
// ceil(numThreads / maxThreadsPerAgent).
func RequiredAgentCount(numThreads, maxThreadsPerAgent int) int {
	if maxThreadsPerAgent <= 0 {
		return 0
	}
	return int(math.Ceil(float64(numThreads) / float64(maxThreadsPerAgent)))
}
