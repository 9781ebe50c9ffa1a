// Package cycle is the Execution Cycle Controller (spec §4.5, C6): the
// started -> {stopped, aborted, terminated} state machine, plus
// stopped <-> excluded, layered directly over internal/store's
// ExecutionCycle rows.
package cycle

import (
	"github.com/hailstorm-run/hailstorm/internal/herrors"
	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Controller wraps store.ExecutionCycle transitions with the state-machine
// rules from spec §4.5's diagram.
type Controller struct {
	st *store.Store
}

// New constructs a Controller.
func New(st *store.Store) *Controller {
	return &Controller{st: st}
}

// Begin starts a new cycle for project, failing with
// ExecutionCycleExists if one is already started.
func (c *Controller) Begin(project *store.Project) (*store.ExecutionCycle, error) {
	if _, ok := c.st.CurrentCycle(project.ID); ok {
		return nil, herrors.ExecutionCycleExists(project.Code)
	}
	return c.st.StartCycle(store.ExecutionCycle{ProjectID: project.ID})
}

// Current returns project's started cycle, failing with
// ExecutionCycleNotExists if there is none.
func (c *Controller) Current(project *store.Project) (*store.ExecutionCycle, error) {
	cyc, ok := c.st.CurrentCycle(project.ID)
	if !ok {
		return nil, herrors.ExecutionCycleNotExists(project.Code)
	}
	return cyc, nil
}

// Stop transitions cycle to stopped.
func (c *Controller) Stop(cycleID int64) (*store.ExecutionCycle, error) {
	return c.st.TransitionCycle(cycleID, store.CycleStopped)
}

// Abort transitions cycle to aborted.
func (c *Controller) Abort(cycleID int64) (*store.ExecutionCycle, error) {
	return c.st.TransitionCycle(cycleID, store.CycleAborted)
}

// Terminate transitions cycle to terminated.
func (c *Controller) Terminate(cycleID int64) (*store.ExecutionCycle, error) {
	return c.st.TransitionCycle(cycleID, store.CycleTerminated)
}

// Exclude moves a stopped cycle to excluded (spec §4.5 results(exclude)).
func (c *Controller) Exclude(cycleID int64) (*store.ExecutionCycle, error) {
	cyc, err := c.st.GetCycle(cycleID)
	if err != nil {
		return nil, err
	}
	if cyc.Status != store.CycleStopped {
		return nil, herrors.Configuration("only a stopped cycle can be excluded", nil)
	}
	return c.st.TransitionCycle(cycleID, store.CycleExcluded)
}

// Include moves an excluded cycle back to stopped (spec §4.5
// results(include)).
func (c *Controller) Include(cycleID int64) (*store.ExecutionCycle, error) {
	cyc, err := c.st.GetCycle(cycleID)
	if err != nil {
		return nil, err
	}
	if cyc.Status != store.CycleExcluded {
		return nil, herrors.Configuration("only an excluded cycle can be included", nil)
	}
	return c.st.TransitionCycle(cycleID, store.CycleStopped)
}

// MarkReported moves a stopped cycle to reported, after C8 has produced a
// report covering it.
func (c *Controller) MarkReported(cycleID int64) (*store.ExecutionCycle, error) {
	return c.st.TransitionCycle(cycleID, store.CycleReported)
}
