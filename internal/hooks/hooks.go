// Package hooks is the lifecycle hook mechanism referenced by spec §9's
// redesign note: rather than an ActiveRecord-style callback registry keyed
// by event name, each lifecycle point gets an explicit method on the Hooks
// interface, called directly by the manager that owns the transition. No
// event bus, no priority ordering, no implicit dispatch.
package hooks

import (
	"context"

	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Hooks is implemented by callers that want to observe or extend agent
// lifecycle transitions. Every method is called synchronously by the
// owning manager; a returned error aborts the transition in progress.
type Hooks interface {
	// BeforeDestroyLoadAgent runs immediately before agent's backend
	// resources are released (spec: "before_destroy_load_agent").
	BeforeDestroyLoadAgent(ctx context.Context, agent *store.LoadAgent) error
	// AfterStopLoadGeneration runs once JMeter has been signalled to
	// stop on agent (spec: "after_stop_load_generation").
	AfterStopLoadGeneration(ctx context.Context, agent *store.LoadAgent) error
}

// NoOp implements Hooks with no side effects; it is the default when a
// caller does not wire in its own Hooks.
type NoOp struct{}

func (NoOp) BeforeDestroyLoadAgent(context.Context, *store.LoadAgent) error  { return nil }
func (NoOp) AfterStopLoadGeneration(context.Context, *store.LoadAgent) error { return nil }

// orNoOp returns h, or NoOp{} if h is nil, so managers never need a nil
// check at every call site.
func orNoOp(h Hooks) Hooks {
	if h == nil {
		return NoOp{}
	}
	return h
}

// Coalesce returns h if non-nil, otherwise NoOp{}. Managers should store
// the result of Coalesce(h) rather than h itself.
func Coalesce(h Hooks) Hooks {
	return orNoOp(h)
}
