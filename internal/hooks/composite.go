package hooks

import (
	"context"

	"github.com/hailstorm-run/hailstorm/internal/store"
)

// Composite runs multiple Hooks implementations for the same lifecycle
// point, in order, stopping at the first error.
type Composite []Hooks

func (c Composite) BeforeDestroyLoadAgent(ctx context.Context, agent *store.LoadAgent) error {
	for _, h := range c {
		if err := h.BeforeDestroyLoadAgent(ctx, agent); err != nil {
			return err
		}
	}
	return nil
}

func (c Composite) AfterStopLoadGeneration(ctx context.Context, agent *store.LoadAgent) error {
	for _, h := range c {
		if err := h.AfterStopLoadGeneration(ctx, agent); err != nil {
			return err
		}
	}
	return nil
}
