// Package store provides the PostgreSQL persistence layer for the action
// log, spike alerts, throttle state, the cost sample window and operators.
// In-memory implementations with identical semantics back tests and
// DSN-less development.
package store

import "database/sql"

// Store provides access to the PostgreSQL database.
type Store struct {
	db *sql.DB
}

// NewStore creates a Store backed by the given database connection pool.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}
