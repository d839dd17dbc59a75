// Package storage persists flat string-keyed records in SQLite. Every entity
// is a bag of field/value pairs under one record id; numeric fields are
// stored as decimal text. The store is treated as durable but slow: callers
// read a record fully before use and write back after mutating in memory,
// never from inside a world critical section.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	entity TEXT NOT NULL,
	field  TEXT NOT NULL,
	value  TEXT NOT NULL,
	PRIMARY KEY (entity, field)
);
CREATE TABLE IF NOT EXISTS counters (
	name  TEXT PRIMARY KEY,
	value INTEGER NOT NULL
);
`

// Store wraps one SQLite database holding every game record.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the record store and applies the schema.
// Pass ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetRecord loads every field of an entity. A missing entity yields an empty
// map, not an error; callers decide whether absence matters.
func (s *Store) GetRecord(ctx context.Context, entity string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT field, value FROM records WHERE entity = ?`, entity)
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", entity, err)
	}
	defer rows.Close()

	record := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan record %s: %w", entity, err)
		}
		record[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record %s: %w", entity, err)
	}
	return record, nil
}

// GetField loads one field. The second result reports presence.
func (s *Store) GetField(ctx context.Context, entity, field string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM records WHERE entity = ? AND field = ?`, entity, field).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get field %s.%s: %w", entity, field, err)
	}
	return value, true, nil
}

// SetFields upserts a batch of fields for one entity in a single transaction.
func (s *Store) SetFields(ctx context.Context, entity string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set fields %s: %w", entity, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records (entity, field, value) VALUES (?, ?, ?)
		ON CONFLICT (entity, field) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return fmt.Errorf("set fields %s: %w", entity, err)
	}
	defer stmt.Close()

	for field, value := range fields {
		if _, err := stmt.ExecContext(ctx, entity, field, value); err != nil {
			return fmt.Errorf("set field %s.%s: %w", entity, field, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set fields %s: %w", entity, err)
	}
	return nil
}

// SetField upserts a single field.
func (s *Store) SetField(ctx context.Context, entity, field, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO records (entity, field, value) VALUES (?, ?, ?)
		ON CONFLICT (entity, field) DO UPDATE SET value = excluded.value`,
		entity, field, value)
	if err != nil {
		return fmt.Errorf("set field %s.%s: %w", entity, field, err)
	}
	return nil
}

// DeleteRecord removes every field of an entity. Deleting a missing entity is
// a no-op.
func (s *Store) DeleteRecord(ctx context.Context, entity string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE entity = ?`, entity); err != nil {
		return fmt.Errorf("delete record %s: %w", entity, err)
	}
	return nil
}

// DeleteField removes one field of an entity.
func (s *Store) DeleteField(ctx context.Context, entity, field string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE entity = ? AND field = ?`, entity, field); err != nil {
		return fmt.Errorf("delete field %s.%s: %w", entity, field, err)
	}
	return nil
}

// NextID atomically increments and returns a named counter. Counters start
// at 1 on first use. This is the one cross-connection serialization point
// the store provides.
func (s *Store) NextID(ctx context.Context, counter string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = value + 1
		RETURNING value`, counter).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next id %s: %w", counter, err)
	}
	return id, nil
}
