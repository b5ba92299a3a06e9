package store

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderVisitor SenderType = "visitor"
	SenderStaff   SenderType = "staff"
	SenderSystem  SenderType = "system"
)

// Valid reports whether t is a known sender type.
func (t SenderType) Valid() bool {
	switch t {
	case SenderVisitor, SenderStaff, SenderSystem:
		return true
	}
	return false
}

// Store provides durable state on top of SQLite.
//
// All mutation paths that can race (sequence allocation, message dedup,
// summary projection, read pointers) are single-statement atomic operations;
// the store never takes application-level locks.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by the given database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}
