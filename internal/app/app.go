// Package app wires the persistence layer, event log and engine together
// for the CLI and the server. One Open call per process.
package app

import (
	"database/sql"
	"fmt"

	"streakline/internal/config"
	"streakline/internal/db"
	"streakline/internal/engine"
	"streakline/internal/events"
	"streakline/internal/migrate"
	"streakline/internal/store"
)

type App struct {
	DB     *sql.DB
	Config *config.Config
	Store  store.SQLite
	Events events.Writer
	Engine engine.Engine
}

// Open ensures the workspace exists, opens and migrates the database, loads
// the optional streakline.yml and returns the wired application.
func Open(workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	st := store.SQLite{DB: conn}
	ev := events.Writer{DB: conn}
	e := engine.New(st, ev)
	e.Zone = cfg.Location()
	return &App{
		DB:     conn,
		Config: cfg,
		Store:  st,
		Events: ev,
		Engine: e,
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
