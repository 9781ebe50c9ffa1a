package cli

import (
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hailstorm-run/hailstorm/internal/hailctx"
	"github.com/hailstorm-run/hailstorm/internal/store"
	"github.com/hailstorm-run/hailstorm/internal/workspace"
)

// projectWorkspace is the on-disk layout root for projectCode, nested
// under --workspace-root (spec §6: each project owns its own db/app/log/
// tmp/reports/config/vendor/script tree).
func projectWorkspace(projectCode string) *workspace.Workspace {
	return workspace.New(filepath.Join(workspaceRoot, store.SlugifyProjectCode(projectCode)))
}

// newLogger builds the per-invocation zap logger, production-formatted
// unless --verbose asked for development (human-readable, debug-level)
// output.
func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// session bundles everything a command handler needs and a save() that
// must run before the process exits on any path that mutated state.
type session struct {
	ctx  *hailctx.Context
	ws   *workspace.Workspace
	st   *store.Store
	proj *store.Project
}

// save persists the store and audit trail back to the project's workspace.
func (s *session) save() error {
	if err := hailctx.SaveStore(s.ws, s.st); err != nil {
		return err
	}
	return hailctx.SaveAuditLog(s.ws, s.ctx.Audit)
}

// openSession loads an existing project's workspace/store/audit log and
// resolves its project row. Used by every command except setup, which
// creates the project+workspace on first use.
func openSession(projectCode string) (*session, error) {
	ws := projectWorkspace(projectCode)
	st, err := hailctx.LoadStore(ws)
	if err != nil {
		return nil, err
	}
	auditLog, err := hailctx.LoadAuditLog(ws)
	if err != nil {
		return nil, err
	}
	proj, err := st.GetProjectByCode(projectCode)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}
	hctx := hailctx.New(st, ws, nil, auditLog, nil, logger.Sugar())
	return &session{ctx: hctx, ws: ws, st: st, proj: proj}, nil
}
