package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

// Advisory lock, чтобы два экземпляра не мигрировали схему одновременно.
const schemaLockKey = int64(10824701)

const migrationLedgerDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Файлы миграций: NNN_name.up.sql / NNN_name.down.sql.
var migrationNameRe = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)

type migration struct {
	version int64
	name    string
	up      string
	down    string
}

func (m migration) label() string {
	return fmt.Sprintf("%d_%s", m.version, m.name)
}

// MigrateUp применяет недостающие миграции; steps=0 — все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		migrations, err := readMigrations()
		if err != nil {
			return err
		}

		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}

		done := 0
		for _, m := range migrations {
			if applied[m.version] {
				continue
			}
			if err := execInTx(ctx, conn, m.label(), func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, m.up); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx,
					`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`,
					m.version, m.name)
				return err
			}); err != nil {
				return err
			}
			if done++; steps > 0 && done >= steps {
				break
			}
		}
		return nil
	})
}

// MigrateDown откатывает steps последних миграций; steps<=0 трактуется как 1.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}

	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		migrations, err := readMigrations()
		if err != nil {
			return err
		}
		byVersion := make(map[int64]migration, len(migrations))
		for _, m := range migrations {
			byVersion[m.version] = m
		}

		rows, err := conn.QueryContext(ctx,
			`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT $1`, steps)
		if err != nil {
			return fmt.Errorf("list applied migrations: %w", err)
		}
		victims, err := scanVersions(rows)
		if err != nil {
			return err
		}

		for _, version := range victims {
			m, ok := byVersion[version]
			if !ok {
				return fmt.Errorf("applied migration %d has no local down file", version)
			}
			if err := execInTx(ctx, conn, m.label(), func(tx *sql.Tx) error {
				if _, err := tx.ExecContext(ctx, m.down); err != nil {
					return err
				}
				_, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.version)
				return err
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// MigrationStatus возвращает максимальную применённую версию и число
// применённых миграций.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errors.New("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, migrationLedgerDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	var (
		version int64
		applied int
	)
	err := s.db.QueryRowContext(queryCtx,
		`SELECT COALESCE(MAX(version), 0), COUNT(*) FROM schema_migrations`,
	).Scan(&version, &applied)
	if err != nil {
		return 0, 0, fmt.Errorf("read migration status: %w", err)
	}
	return version, applied, nil
}

// withSchemaLock выполняет fn на одном соединении под advisory-блокировкой
// со свежей таблицей schema_migrations.
func (s *Store) withSchemaLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock($1)`, schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, schemaLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationLedgerDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	return fn(conn)
}

func execInTx(ctx context.Context, conn *sql.Conn, label string, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for migration %s: %w", label, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply migration %s: %w", label, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", label, err)
	}
	return nil
}

func appliedVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}
	versions, err := scanVersions(rows)
	if err != nil {
		return nil, err
	}

	set := make(map[int64]bool, len(versions))
	for _, version := range versions {
		set[version] = true
	}
	return set, nil
}

func scanVersions(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate migration versions: %w", err)
	}
	return versions, nil
}

// readMigrations читает встроенные миграции и требует парные up/down файлы.
func readMigrations() ([]migration, error) {
	return readMigrationsFrom(migrationsFS)
}

func readMigrationsFrom(fsys fs.FS) ([]migration, error) {
	files, err := fs.Glob(fsys, "sql/migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files embedded")
	}

	partial := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		parts := migrationNameRe.FindStringSubmatch(base)
		if parts == nil {
			return nil, fmt.Errorf("migration file %s does not match NNN_name.up|down.sql", base)
		}

		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("migration version in %s: %w", base, err)
		}

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file %s is empty", base)
		}

		m := partial[version]
		if m == nil {
			m = &migration{version: version, name: parts[2]}
			partial[version] = m
		} else if m.name != parts[2] {
			return nil, fmt.Errorf("version %d has two names: %s and %s", version, m.name, parts[2])
		}

		switch parts[3] {
		case "up":
			if m.up != "" {
				return nil, fmt.Errorf("duplicate up file for version %d", version)
			}
			m.up = body
		case "down":
			if m.down != "" {
				return nil, fmt.Errorf("duplicate down file for version %d", version)
			}
			m.down = body
		}
	}

	migrations := make([]migration, 0, len(partial))
	for _, m := range partial {
		if m.up == "" || m.down == "" {
			return nil, fmt.Errorf("migration %s is missing its up or down file", m.label())
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].version < migrations[j].version })

	return migrations, nil
}
