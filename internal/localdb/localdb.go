// Package localdb provides durable local snapshot storage for the
// document store.
//
// Snapshots are written to an embedded SQLite database with WAL mode.
// Every save writes the identical JSON payload to two independent slots
// (primary and backup) so a corrupted read of one slot can be recovered
// from the other. A third slot retains the snapshot taken at sign-out.
//
// Persistence here is a best-effort side channel, not a transactional
// guarantee: callers log save failures and carry on, they never let a
// storage error abort a user-initiated mutation.
package localdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/markbook-app/markbook/internal/store"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Slot names for the snapshots table.
const (
	SlotPrimary = "primary"
	SlotBackup  = "backup"
	SlotSignout = "signout"
)

// ErrNoData is returned by Load when neither primary nor backup holds a
// usable snapshot; the caller default-initializes the store.
var ErrNoData = errors.New("no local snapshot")

// DB wraps the embedded snapshot database.
type DB struct {
	conn *sql.DB
	path string

	// Hash of the primary payload last written through this handle, so
	// file watchers can tell our own saves apart from another writer's.
	mu       sync.Mutex
	lastHash [sha256.Size]byte
	saved    bool
}

// Open creates or opens the snapshot database at path and ensures the
// schema exists. The caller must Close when done.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn, path: path}

	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		slot TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		saved_at TEXT NOT NULL
	);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database after a WAL checkpoint.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	db.conn = nil
	return nil
}

// Save serializes the snapshot and writes the identical payload to the
// primary and backup slots inside one transaction.
func (db *DB) Save(ctx context.Context, snap *store.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, slot := range []string{SlotPrimary, SlotBackup} {
		if err := upsertSlot(ctx, tx, slot, string(payload), now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	db.mu.Lock()
	db.lastHash = sha256.Sum256(payload)
	db.saved = true
	db.mu.Unlock()
	return nil
}

// ExternallyModified reports whether the primary slot holds a payload
// other than the last one saved through this handle. File watchers use it
// to tell another writer's change apart from an event caused by this
// process's own save. Before the first in-process save every non-empty
// slot counts as external.
func (db *DB) ExternallyModified(ctx context.Context) (bool, error) {
	db.mu.Lock()
	saved, last := db.saved, db.lastHash
	db.mu.Unlock()

	var payload string
	err := db.conn.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE slot = ?`, SlotPrimary).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return saved, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read slot %s: %w", SlotPrimary, err)
	}
	if !saved {
		return true, nil
	}
	return sha256.Sum256([]byte(payload)) != last, nil
}

// SaveSignout retains the given snapshot in the sign-out slot for
// potential recovery after the session ends.
func (db *DB) SaveSignout(ctx context.Context, snap *store.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := upsertSlot(ctx, tx, SlotSignout, string(payload), now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sign-out snapshot: %w", err)
	}
	return nil
}

func upsertSlot(ctx context.Context, tx *sql.Tx, slot, payload, savedAt string) error {
	query := `
	INSERT INTO snapshots (slot, payload, saved_at) VALUES (?, ?, ?)
	ON CONFLICT(slot) DO UPDATE SET
		payload = excluded.payload,
		saved_at = excluded.saved_at
	`
	if _, err := tx.ExecContext(ctx, query, slot, payload, savedAt); err != nil {
		return fmt.Errorf("failed to write slot %s: %w", slot, err)
	}
	return nil
}

// Load reads the primary slot; on absence or parse failure it falls back
// to the backup slot. Returns ErrNoData when both fail.
func (db *DB) Load(ctx context.Context) (*store.Snapshot, error) {
	snap, err := db.loadSlot(ctx, SlotPrimary)
	if err == nil {
		return snap, nil
	}
	if !errors.Is(err, ErrNoData) {
		fmt.Fprintf(os.Stderr, "Warning: primary snapshot unreadable, trying backup: %v\n", err)
	}
	snap, berr := db.loadSlot(ctx, SlotBackup)
	if berr == nil {
		return snap, nil
	}
	if errors.Is(err, ErrNoData) && errors.Is(berr, ErrNoData) {
		return nil, ErrNoData
	}
	return nil, fmt.Errorf("both snapshot slots unreadable: primary: %v; backup: %w", err, berr)
}

// LoadBackup is the explicit recovery path: it reads only the backup
// slot, for use when the full Load pipeline has already failed.
func (db *DB) LoadBackup(ctx context.Context) (*store.Snapshot, error) {
	return db.loadSlot(ctx, SlotBackup)
}

// LoadSignout reads the snapshot retained at sign-out time.
func (db *DB) LoadSignout(ctx context.Context) (*store.Snapshot, error) {
	return db.loadSlot(ctx, SlotSignout)
}

func (db *DB) loadSlot(ctx context.Context, slot string) (*store.Snapshot, error) {
	var payload string
	err := db.conn.QueryRowContext(ctx,
		`SELECT payload FROM snapshots WHERE slot = ?`, slot).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read slot %s: %w", slot, err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to parse slot %s: %w", slot, err)
	}
	return &snap, nil
}

// RawDB returns the underlying sql.DB connection, useful for integrating
// with other tooling that expects *sql.DB.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}
