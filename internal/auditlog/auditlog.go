// Package auditlog provides SQLite-backed append-only recording of every
// mutation the control plane performs: who did what to which target and
// when. It is a control-plane accessory, never consulted on the
// query-serving path.
package auditlog

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a SQLite-backed audit log.
type DB struct {
	conn *sql.DB
}

// Open opens or creates a SQLite database at path and brings its schema
// up to date.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("auditlog: opening database: %w", err)
	}
	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	db := &DB{conn: conn}
	if err := db.runMigrations(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("auditlog: running migrations: %w", err)
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Health checks database connectivity.
func (db *DB) Health() error {
	return db.conn.Ping()
}

func (db *DB) runMigrations() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating migration source: %w", err)
	}

	dbDriver, err := sqlite.WithInstance(db.conn, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Entry is one recorded control-plane mutation.
type Entry struct {
	ID         int64
	OccurredAt time.Time
	Actor      string
	Action     string
	Target     string
	Detail     string
}

// Append records a new mutation. occurredAt is supplied by the caller
// rather than computed here, so the package stays free of wall-clock
// reads that would complicate testing.
func (db *DB) Append(occurredAt time.Time, actor, action, target, detail string) error {
	_, err := db.conn.Exec(
		`INSERT INTO audit_entries (occurred_at, actor, action, target, detail) VALUES (?, ?, ?, ?, ?)`,
		occurredAt.UTC().Format(time.RFC3339Nano), actor, action, target, detail,
	)
	if err != nil {
		return fmt.Errorf("auditlog: appending entry: %w", err)
	}
	return nil
}

// Recent returns the most recently recorded entries, newest first,
// bounded to limit rows.
func (db *DB) Recent(limit int) ([]Entry, error) {
	rows, err := db.conn.Query(
		`SELECT id, occurred_at, actor, action, target, detail
		 FROM audit_entries ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: querying recent entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var occurredAt string
		if err := rows.Scan(&e.ID, &occurredAt, &e.Actor, &e.Action, &e.Target, &e.Detail); err != nil {
			return nil, fmt.Errorf("auditlog: scanning entry: %w", err)
		}
		e.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("auditlog: parsing occurred_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditlog: iterating entries: %w", err)
	}
	return entries, nil
}

// ForTarget returns the most recent entries whose target exactly matches,
// newest first, bounded to limit rows. Used by the control plane to show
// the mutation history of a single blocklist or override.
func (db *DB) ForTarget(target string, limit int) ([]Entry, error) {
	rows, err := db.conn.Query(
		`SELECT id, occurred_at, actor, action, target, detail
		 FROM audit_entries WHERE target = ? ORDER BY id DESC LIMIT ?`, target, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("auditlog: querying entries for target: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var occurredAt string
		if err := rows.Scan(&e.ID, &occurredAt, &e.Actor, &e.Action, &e.Target, &e.Detail); err != nil {
			return nil, fmt.Errorf("auditlog: scanning entry: %w", err)
		}
		e.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt)
		if err != nil {
			return nil, fmt.Errorf("auditlog: parsing occurred_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auditlog: iterating entries: %w", err)
	}
	return entries, nil
}
