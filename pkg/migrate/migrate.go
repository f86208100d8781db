package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/pressly/goose/v3"
)

const DefaultDir = "pkg/migrate/migrations"

// Commands that need a live connection. "version" migrates up or down to a
// target; the rest are passed to goose unchanged.
const (
	CommandUp      = "up"
	CommandDown    = "down"
	CommandStatus  = "status"
	CommandReset   = "reset"
	CommandVersion = "version"
)

// Dialect maps a configured DB driver name onto the goose dialect.
func Dialect(driver string) string {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return "sqlite3"
	default:
		return "postgres"
	}
}

// Runner applies the schema through goose for one connection and dialect.
type Runner struct {
	db      *sql.DB
	dialect string
	dir     string
}

func NewRunner(db *sql.DB, dialect, dir string) (*Runner, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(dialect); err != nil {
		return nil, fmt.Errorf("set goose dialect: %w", err)
	}
	return &Runner{db: db, dialect: dialect, dir: dir}, nil
}

// Exec runs command. For CommandVersion the first arg is the target version.
func (r *Runner) Exec(ctx context.Context, command string, args ...string) error {
	switch command {
	case CommandVersion:
		if len(args) == 0 || args[0] == "" {
			return fmt.Errorf("target version is required")
		}
		return r.migrateTo(ctx, args[0])
	case CommandUp, CommandDown, CommandStatus, CommandReset:
		// goose prints status output to stdout itself
		if err := goose.RunContext(ctx, command, r.db, r.dir, args...); err != nil {
			return fmt.Errorf("goose %s: %w", command, err)
		}
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", command)
	}
}

// Version reports the schema version recorded in the database.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	current, err := goose.GetDBVersionContext(ctx, r.db)
	if err != nil {
		return 0, fmt.Errorf("get db version: %w", err)
	}
	return current, nil
}

func (r *Runner) migrateTo(ctx context.Context, targetVersion string) error {
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}
	current, err := r.Version(ctx)
	if err != nil {
		return err
	}

	switch {
	case current == target:
		return nil
	case current < target:
		err = goose.UpToContext(ctx, r.db, r.dir, target)
	default:
		err = goose.DownToContext(ctx, r.db, r.dir, target)
	}
	if err != nil {
		return fmt.Errorf("goose migrate %d -> %d: %w", current, target, err)
	}
	return nil
}

// Run builds a Runner and executes a single command.
func Run(ctx context.Context, db *sql.DB, dialect, dir, command string, args ...string) error {
	runner, err := NewRunner(db, dialect, dir)
	if err != nil {
		return err
	}
	return runner.Exec(ctx, command, args...)
}
