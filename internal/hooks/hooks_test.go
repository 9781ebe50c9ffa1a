package hooks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailstorm-run/hailstorm/internal/store"
)

type recordingHooks struct {
	destroyed []int64
	stopped   []int64
	failOn    int64
}

func (r *recordingHooks) BeforeDestroyLoadAgent(_ context.Context, a *store.LoadAgent) error {
	if a.ID == r.failOn {
		return errors.New("boom")
	}
	r.destroyed = append(r.destroyed, a.ID)
	return nil
}

func (r *recordingHooks) AfterStopLoadGeneration(_ context.Context, a *store.LoadAgent) error {
	r.stopped = append(r.stopped, a.ID)
	return nil
}

func TestNoOpDoesNothing(t *testing.T) {
	var h Hooks = NoOp{}
	require.NoError(t, h.BeforeDestroyLoadAgent(context.Background(), &store.LoadAgent{ID: 1}))
	require.NoError(t, h.AfterStopLoadGeneration(context.Background(), &store.LoadAgent{ID: 1}))
}

func TestCoalesceDefaultsNilToNoOp(t *testing.T) {
	h := Coalesce(nil)
	require.NoError(t, h.BeforeDestroyLoadAgent(context.Background(), &store.LoadAgent{ID: 1}))

	r := &recordingHooks{}
	assert.Same(t, Hooks(r), Coalesce(r))
}

func TestCompositeRunsEachInOrderAndStopsOnError(t *testing.T) {
	first := &recordingHooks{}
	second := &recordingHooks{failOn: 2}
	third := &recordingHooks{}

	c := Composite{first, second, third}
	err := c.BeforeDestroyLoadAgent(context.Background(), &store.LoadAgent{ID: 2})
	assert.Error(t, err)
	assert.Equal(t, []int64{2}, first.destroyed)
	assert.Empty(t, second.destroyed)
	assert.Empty(t, third.destroyed)
}

func TestScriptHooksRunsCommandWithAgentEnv(t *testing.T) {
	h := &ScriptHooks{
		BeforeDestroyLoadAgentCmd: `test "$HOOK_AGENT_ID" = "9" && test "$HOOK_AGENT_IDENTIFIER" = "i-9"`,
	}
	agent := &store.LoadAgent{ID: 9, Identifier: "i-9"}
	require.NoError(t, h.BeforeDestroyLoadAgent(context.Background(), agent))
}

func TestScriptHooksEmptyCommandIsNoOp(t *testing.T) {
	h := &ScriptHooks{}
	require.NoError(t, h.BeforeDestroyLoadAgent(context.Background(), &store.LoadAgent{ID: 1}))
	require.NoError(t, h.AfterStopLoadGeneration(context.Background(), &store.LoadAgent{ID: 1}))
}

func TestScriptHooksPropagatesFailure(t *testing.T) {
	h := &ScriptHooks{AfterStopLoadGenerationCmd: "exit 1"}
	err := h.AfterStopLoadGeneration(context.Background(), &store.LoadAgent{ID: 1})
	assert.Error(t, err)
}
