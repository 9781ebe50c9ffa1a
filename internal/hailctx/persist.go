package hailctx

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hailstorm-run/hailstorm/internal/audit"
	"github.com/hailstorm-run/hailstorm/internal/store"
	"github.com/hailstorm-run/hailstorm/internal/workspace"
)

// storeFileName and auditFileName are where a project workspace's store and
// command-history snapshots live, under the workspace's db/ directory
// (spec §6 workspace layout).
const (
	storeFileName = "store.json"
	auditFileName = "audit.json"
)

// StorePath returns the snapshot path for ws.
func StorePath(ws *workspace.Workspace) string {
	return filepath.Join(ws.Dir("db"), storeFileName)
}

// AuditPath returns the command-history snapshot path for ws.
func AuditPath(ws *workspace.Workspace) string {
	return filepath.Join(ws.Dir("db"), auditFileName)
}

// LoadStore reads ws's persisted snapshot, or returns a fresh empty Store
// if none exists yet (first run against a new workspace).
func LoadStore(ws *workspace.Workspace) (*store.Store, error) {
	data, err := os.ReadFile(StorePath(ws))
	if os.IsNotExist(err) {
		return store.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store snapshot: %w", err)
	}

	st := store.New()
	if err := st.FromJSON(data); err != nil {
		return nil, fmt.Errorf("load store snapshot: %w", err)
	}
	return st, nil
}

// SaveStore persists st's current contents to ws's snapshot file,
// overwriting whatever was there (every CLI command that mutates state
// saves on its way out).
func SaveStore(ws *workspace.Workspace, st *store.Store) error {
	if err := ws.Ensure(); err != nil {
		return err
	}
	data, err := st.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize store snapshot: %w", err)
	}
	if err := os.WriteFile(StorePath(ws), data, 0o644); err != nil {
		return fmt.Errorf("write store snapshot: %w", err)
	}
	return nil
}

// LoadAuditLog reads ws's persisted command history, or returns a fresh
// bounded InMemoryLogger if none exists yet.
func LoadAuditLog(ws *workspace.Workspace) (*audit.InMemoryLogger, error) {
	data, err := os.ReadFile(AuditPath(ws))
	if os.IsNotExist(err) {
		return audit.NewInMemoryLogger(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read audit snapshot: %w", err)
	}

	log := audit.NewInMemoryLogger(0)
	if err := log.FromJSON(data); err != nil {
		return nil, fmt.Errorf("load audit snapshot: %w", err)
	}
	return log, nil
}

// SaveAuditLog persists log's current contents to ws's snapshot file.
func SaveAuditLog(ws *workspace.Workspace, log audit.Logger) error {
	if err := ws.Ensure(); err != nil {
		return err
	}
	data, err := log.ToJSON()
	if err != nil {
		return fmt.Errorf("serialize audit snapshot: %w", err)
	}
	if err := os.WriteFile(AuditPath(ws), data, 0o644); err != nil {
		return fmt.Errorf("write audit snapshot: %w", err)
	}
	return nil
}
