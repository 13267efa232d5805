package database

import (
	"database/sql"
	"fmt"
)

// TableCreator builds the gate state schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes the table and index statements. Every statement is
// idempotent.
func (tc *TableCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}
	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

// updated_at holds UTC timestamps in TimestampLayout so string comparison
// orders them correctly.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS gate_sessions (
		identity_key TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		stage TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_gate_sessions_updated_at ON gate_sessions(updated_at)`,
	`CREATE INDEX IF NOT EXISTS idx_gate_sessions_stage ON gate_sessions(stage)`,
}

// TimestampLayout is the fixed-width UTC layout stored in updated_at.
const TimestampLayout = "2006-01-02T15:04:05.000Z"
