package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationsTable = "schema_migrations"

// Migration is one embedded schema file and its tracking state.
type Migration struct {
	Name      string
	Content   string
	Checksum  string
	AppliedAt time.Time
	Modified  bool
}

// ComputeChecksum returns the hex SHA-256 of a migration body.
func ComputeChecksum(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Embedded lists the bundled migrations in name order.
func Embedded() ([]Migration, error) {
	return loadMigrations(migrationFiles, "migrations")
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".sql") || strings.HasSuffix(name, ".down.sql") {
			continue
		}
		content, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Name: name, Content: string(content), Checksum: ComputeChecksum(string(content))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func ensureMigrationsTable(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			checksum TEXT NOT NULL
		)
	`, migrationsTable))
	return err
}

func applied(ctx context.Context, conn *pgx.Conn) (map[string]Migration, error) {
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT name, applied_at, checksum FROM %s ORDER BY name`, migrationsTable))
	if err != nil {
		return nil, fmt.Errorf("query migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Name, &m.AppliedAt, &m.Checksum); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		out[m.Name] = m
	}
	return out, rows.Err()
}

// Pending diffs bundled migrations against the tracking table. An applied
// migration whose checksum no longer matches is returned in modified.
func Pending(ctx context.Context, conn *pgx.Conn, bundled []Migration) (pending, modified []Migration, err error) {
	if err := ensureMigrationsTable(ctx, conn); err != nil {
		return nil, nil, fmt.Errorf("ensure migrations table: %w", err)
	}
	done, err := applied(ctx, conn)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range bundled {
		prev, ok := done[m.Name]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if prev.Checksum != m.Checksum {
			prev.Modified = true
			modified = append(modified, prev)
		}
	}
	return pending, modified, nil
}

// Migrate applies every pending embedded migration, each in its own
// transaction. It refuses to run when an applied migration was edited.
func Migrate(ctx context.Context, databaseURL string) ([]Migration, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	defer conn.Close(ctx)

	bundled, err := Embedded()
	if err != nil {
		return nil, err
	}
	pending, modified, err := Pending(ctx, conn, bundled)
	if err != nil {
		return nil, err
	}
	if len(modified) > 0 {
		names := make([]string, 0, len(modified))
		for _, m := range modified {
			names = append(names, m.Name)
		}
		return nil, fmt.Errorf("applied migrations were modified: %s", strings.Join(names, ", "))
	}

	for _, m := range pending {
		if err := apply(ctx, conn, m); err != nil {
			return nil, err
		}
	}
	return pending, nil
}

func apply(ctx context.Context, conn *pgx.Conn, m Migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, m.Content); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.Name, err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (name, checksum) VALUES ($1, $2)`, migrationsTable), m.Name, m.Checksum); err != nil {
		return fmt.Errorf("record migration %s: %w", m.Name, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.Name, err)
	}
	return nil
}
