package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// SourceDir is where new migrations are written, relative to the repo root.
const SourceDir = "pkg/migrate/migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations returns the SQL migrations compiled into the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Source picks the embedded migrations unless an on-disk dir is given.
func Source(dir string) fs.FS {
	if dir == "" {
		return Migrations()
	}
	return os.DirFS(dir)
}

// Migrator applies the cart schema with goose. The schema relies on partial
// unique indexes and jsonb, so only Postgres is supported.
type Migrator struct {
	provider *goose.Provider
}

// Result describes one applied or rolled back migration.
type Result struct {
	Version   int64
	Path      string
	Direction string
	Duration  string
}

// Status describes whether a known migration has been applied.
type Status struct {
	Version   int64
	Path      string
	State     string
	AppliedAt string
}

func New(db *sql.DB, source fs.FS) (*Migrator, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if source == nil {
		source = Migrations()
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, source)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{provider: provider}, nil
}

// Up applies every pending migration.
func (m *Migrator) Up(ctx context.Context) ([]Result, error) {
	results, err := m.provider.Up(ctx)
	return toResults(results), wrap("up", err)
}

// UpByOne applies the next pending migration, if any.
func (m *Migrator) UpByOne(ctx context.Context) ([]Result, error) {
	result, err := m.provider.UpByOne(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil, nil
	}
	return toResults([]*goose.MigrationResult{result}), wrap("up-by-one", err)
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) ([]Result, error) {
	result, err := m.provider.Down(ctx)
	if errors.Is(err, goose.ErrNoNextVersion) {
		return nil, nil
	}
	return toResults([]*goose.MigrationResult{result}), wrap("down", err)
}

// To moves the schema up or down to target, given as YYYYMMDDHHMMSS.
func (m *Migrator) To(ctx context.Context, target string) ([]Result, error) {
	version, err := strconv.ParseInt(target, 10, 64)
	if err != nil || len(target) != 14 {
		return nil, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", target)
	}
	current, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, wrap("version", err)
	}
	switch {
	case version > current:
		results, err := m.provider.UpTo(ctx, version)
		return toResults(results), wrap("up-to", err)
	case version < current:
		results, err := m.provider.DownTo(ctx, version)
		return toResults(results), wrap("down-to", err)
	}
	return nil, nil
}

// Status lists every known migration with its state.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	statuses, err := m.provider.Status(ctx)
	if err != nil {
		return nil, wrap("status", err)
	}
	out := make([]Status, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		entry := Status{Version: st.Source.Version, Path: st.Source.Path, State: string(st.State)}
		if !st.AppliedAt.IsZero() {
			entry.AppliedAt = st.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		out = append(out, entry)
	}
	return out, nil
}

func toResults(results []*goose.MigrationResult) []Result {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil || r.Empty {
			continue
		}
		out = append(out, Result{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Direction: r.Direction,
			Duration:  r.Duration.String(),
		})
	}
	return out
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("goose %s: %w", op, err)
}
