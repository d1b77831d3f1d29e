// Package migrate applies goose SQL migrations from an embedded filesystem.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

// Commands accepted by Run.
var Commands = []string{"up", "up-by-one", "down", "redo", "reset", "status", "version"}

type gooseLogger struct{ log *zap.Logger }

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.log.Fatal(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func supported(command string) bool {
	for _, c := range Commands {
		if c == command {
			return true
		}
	}
	return false
}

// Run executes a goose command against dsn using migrations at the root of fsys.
func Run(ctx context.Context, dsn string, fsys fs.FS, command string, log *zap.Logger, args ...string) error {
	if !supported(command) {
		return fmt.Errorf("migrate: unsupported command %q", command)
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("migrate: DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("migrate: open: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(fsys)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, ".", args...); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}

// Up is Run(ctx, dsn, fsys, "up", log).
func Up(ctx context.Context, dsn string, fsys fs.FS, log *zap.Logger) error {
	return Run(ctx, dsn, fsys, "up", log)
}
