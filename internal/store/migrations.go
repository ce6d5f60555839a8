package store

import (
	"database/sql"
	"fmt"

	"github.com/opencode-kanban/okb/internal/constants"
)

// migration is a single numbered, idempotent schema step. Steps never
// reorder or renumber once released; new columns/tables are added by new
// migrations, following the corpus's guarded-ALTER convention.
type migration struct {
	version int
	apply   func(*sql.DB) error
}

var migrations = []migration{
	{1, migration001CoreTables},
	{2, migration002StatusError},
	{3, migration003SessionTodoJSON},
}

func runMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("reading schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("scanning schema_migrations: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := m.apply(db); err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, m.version, isoNow()); err != nil {
			return fmt.Errorf("recording migration %d: %w", m.version, err)
		}
	}
	return nil
}

func migration001CoreTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS repos (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			default_base TEXT NOT NULL DEFAULT '',
			remote_url TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			slug TEXT NOT NULL UNIQUE,
			position INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			repo_id TEXT NOT NULL REFERENCES repos(id),
			branch TEXT NOT NULL,
			category_id TEXT NOT NULL REFERENCES categories(id),
			position INTEGER NOT NULL,
			tmux_session_name TEXT NOT NULL DEFAULT '',
			worktree_path TEXT NOT NULL DEFAULT '',
			tmux_status TEXT NOT NULL DEFAULT 'unknown',
			status_source TEXT NOT NULL DEFAULT 'none',
			status_fetched_at TEXT NOT NULL DEFAULT '',
			opencode_session_id TEXT NOT NULL DEFAULT '',
			archived INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE(repo_id, branch)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_category ON tasks(category_id)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return seedDefaultCategories(db)
}

// migration002StatusError adds the status_error column used to describe why
// a reconciliation marked a task broken/unavailable. Guarded via
// PRAGMA table_info so re-running the migration set is a no-op, matching
// the corpus's guarded-ALTER idiom.
func migration002StatusError(db *sql.DB) error {
	has, err := columnExists(db, "tasks", "status_error")
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE tasks ADD COLUMN status_error TEXT NOT NULL DEFAULT ''`)
	return err
}

// migration003SessionTodoJSON adds the opaque cached-agent-progress column.
func migration003SessionTodoJSON(db *sql.DB) error {
	has, err := columnExists(db, "tasks", "session_todo_json")
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = db.Exec(`ALTER TABLE tasks ADD COLUMN session_todo_json TEXT NOT NULL DEFAULT ''`)
	return err
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf(`PRAGMA table_info(%s)`, table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// seedDefaultCategories inserts the todo/in-progress/done categories if
// absent, checked by slug so re-running the seed step is idempotent.
func seedDefaultCategories(db *sql.DB) error {
	for i, c := range constants.DefaultSeedCategories {
		var exists int
		err := db.QueryRow(`SELECT COUNT(1) FROM categories WHERE slug = ?`, c.Slug).Scan(&exists)
		if err != nil {
			return err
		}
		if exists > 0 {
			continue
		}
		if _, err := db.Exec(
			`INSERT INTO categories (id, name, slug, position, created_at) VALUES (?, ?, ?, ?, ?)`,
			newID(), c.Name, c.Slug, i, isoNow(),
		); err != nil {
			return err
		}
	}
	return nil
}
