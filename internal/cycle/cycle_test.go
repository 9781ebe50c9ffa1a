package cycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hailstorm-run/hailstorm/internal/store"
)

func TestBeginRejectsSecondStartedCycle(t *testing.T) {
	st := store.New()
	c := New(st)
	p, _ := st.CreateProject(store.Project{Code: "p1"})

	_, err := c.Begin(p)
	require.NoError(t, err)

	_, err = c.Begin(p)
	assert.Error(t, err)
}

func TestCurrentFailsWithNoStartedCycle(t *testing.T) {
	st := store.New()
	c := New(st)
	p, _ := st.CreateProject(store.Project{Code: "p2"})

	_, err := c.Current(p)
	assert.Error(t, err)
}

func TestExcludeIncludeRoundTrip(t *testing.T) {
	st := store.New()
	c := New(st)
	p, _ := st.CreateProject(store.Project{Code: "p3"})
	cyc, _ := c.Begin(p)

	_, err := c.Stop(cyc.ID)
	require.NoError(t, err)

	_, err = c.Exclude(cyc.ID)
	require.NoError(t, err)

	got, _ := st.GetCycle(cyc.ID)
	assert.Equal(t, store.CycleExcluded, got.Status)

	_, err = c.Include(cyc.ID)
	require.NoError(t, err)

	got, _ = st.GetCycle(cyc.ID)
	assert.Equal(t, store.CycleStopped, got.Status)
}

func TestExcludeRejectsNonStoppedCycle(t *testing.T) {
	st := store.New()
	c := New(st)
	p, _ := st.CreateProject(store.Project{Code: "p4"})
	cyc, _ := c.Begin(p)

	_, err := c.Exclude(cyc.ID)
	assert.Error(t, err, "a started cycle cannot be excluded directly")
}
