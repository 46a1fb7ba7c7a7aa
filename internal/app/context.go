package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"shiftline/internal/config"
	"shiftline/internal/db"
	"shiftline/internal/engine"
	"shiftline/internal/migrate"
)

// Session is an opened workspace: migrated database plus the engine built
// from the workspace config.
type Session struct {
	Workspace string
	Conn      *sql.DB
	Config    *config.Config
	Engine    engine.Engine
}

func (s *Session) Close() error {
	if s == nil || s.Conn == nil {
		return nil
	}
	return s.Conn.Close()
}

// Open prepares the workspace directory, applies pending migrations and
// loads shiftline.yml, falling back to defaults when it is absent.
func Open(ctx context.Context, workspace string) (*Session, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Session{
		Workspace: workspace,
		Conn:      conn,
		Config:    cfg,
		Engine:    engine.New(conn, cfg),
	}, nil
}

// WriteDefaultConfig writes the default shiftline.yml. An existing file is
// kept unless force is set.
func WriteDefaultConfig(workspace string, force bool) (string, error) {
	path := config.Path(workspace)
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists; use --force to overwrite", path)
	} else if err != nil && !os.IsNotExist(err) {
		return "", err
	}
	if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
