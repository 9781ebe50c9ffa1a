// Package workspace materializes the per-project directory layout (spec §6):
// db/, app/, log/, tmp/, reports/, config/, vendor/, script/, plus the
// per-cycle tmp/SEQUENCE-<id>/ result directories. Grounded on the
// teacher's LocalStorage backend (pkg/provisioning/backup), which creates
// and writes under a base path the same way.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// subdirs are the fixed top-level directories every project workspace owns.
var subdirs = []string{"db", "app", "log", "tmp", "reports", "config", "vendor", "script"}

// Workspace roots one project's on-disk layout under a base directory.
type Workspace struct {
	root string
}

// New returns a Workspace rooted at root (not yet created on disk).
func New(root string) *Workspace {
	return &Workspace{root: root}
}

// Root returns the workspace's base directory.
func (w *Workspace) Root() string { return w.root }

// Ensure creates every fixed subdirectory, idempotently.
func (w *Workspace) Ensure() error {
	for _, name := range subdirs {
		dir := filepath.Join(w.root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("ensure workspace dir %s: %w", dir, err)
		}
	}
	return nil
}

// Dir returns the path of one of the fixed subdirectories (e.g. "tmp",
// "reports"), without creating it.
func (w *Workspace) Dir(name string) string {
	return filepath.Join(w.root, name)
}

// CycleDir returns (and creates) tmp/SEQUENCE-<cycleID>/, where collected
// `.jtl` files for a cycle are written.
func (w *Workspace) CycleDir(cycleID int64) (string, error) {
	dir := filepath.Join(w.root, "tmp", fmt.Sprintf("SEQUENCE-%d", cycleID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure cycle dir %s: %w", dir, err)
	}
	return dir, nil
}

// AgentDir returns (and creates) app/agent-<agentID>/, where a plan file and
// its data files are deployed before a run.
func (w *Workspace) AgentDir(agentID int64) (string, error) {
	dir := filepath.Join(w.root, "app", fmt.Sprintf("agent-%d", agentID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("ensure agent dir %s: %w", dir, err)
	}
	return dir, nil
}

// ReportPath returns the path a rendered report for cycleIDs would be
// written to under reports/.
func (w *Workspace) ReportPath(name string) string {
	return filepath.Join(w.root, "reports", name)
}

// Remove deletes the entire workspace (spec C7 purge("all") cleanup).
func (w *Workspace) Remove() error {
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("remove workspace %s: %w", w.root, err)
	}
	return nil
}
