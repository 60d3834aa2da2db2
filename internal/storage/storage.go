package storage

import (
	"context"
	"database/sql"
	"errors"
)

// ErrDuplicateKey is returned when an insert or migration would produce a
// second row with the same (id, definition_id, definition_version).
var ErrDuplicateKey = errors.New("duplicate instance key")

// Executor is a database executor interface that can be either *sql.DB or *sql.Tx.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Storage defines the interface for instance persistence.
// Implementations must be safe for concurrent use.
type Storage interface {
	// DriverName returns the name of the SQL dialect ("sqlite", "postgres", "mysql").
	DriverName() string

	// Driver returns the dialect driver.
	Driver() Driver

	// Close closes the storage connection
	Close() error

	// DB returns the underlying database connection.
	// This is primarily used for migrations.
	DB() *sql.DB

	TransactionManager
	InstanceManager
	MigrationManager
}

// TransactionManager handles transaction operations.
type TransactionManager interface {
	// BeginTransaction starts a new transaction.
	// Returns a context with the transaction attached.
	BeginTransaction(ctx context.Context) (context.Context, error)

	// CommitTransaction commits the current transaction.
	CommitTransaction(ctx context.Context) error

	// RollbackTransaction rolls back the current transaction.
	RollbackTransaction(ctx context.Context) error

	// InTransaction returns true if there is an active transaction.
	InTransaction(ctx context.Context) bool

	// Conn returns the database executor for the current context.
	// If a transaction is active, returns the transaction; otherwise, returns the database.
	Conn(ctx context.Context) Executor
}

// InstanceManager handles instance CRUD operations.
//
// Every statement is scoped to a definition through the definition predicate,
// so two definitions may hold instances with the same ID.
type InstanceManager interface {
	// InsertInstance inserts a new row. Returns ErrDuplicateKey if the key
	// already exists.
	InsertInstance(ctx context.Context, rec *InstanceRecord) error

	// UpdateInstance overwrites the payload unconditionally.
	// It returns true iff exactly one row matched.
	UpdateInstance(ctx context.Context, def DefinitionKey, id string, payload []byte) (bool, error)

	// UpdateInstanceWithLock overwrites the payload and sets the version to
	// expected+1, but only if the stored version equals expected.
	// It returns false if the row does not exist or expected is not current.
	UpdateInstanceWithLock(ctx context.Context, def DefinitionKey, id string, payload []byte, expected int64) (bool, error)

	// DeleteInstance deletes a row. It returns true iff exactly one row was deleted.
	DeleteInstance(ctx context.Context, def DefinitionKey, id string) (bool, error)

	// SelectInstance loads a single row. Returns (nil, nil) if it does not exist.
	SelectInstance(ctx context.Context, def DefinitionKey, id string) (*InstanceRecord, error)

	// SelectInstances loads every row owned by def, ordered by ID.
	// The result set is fully read before returning.
	SelectInstances(ctx context.Context, def DefinitionKey) ([]*InstanceRecord, error)
}

// MigrationManager rewrites the owning definition of stored instances.
// The version column is never modified.
type MigrationManager interface {
	// MigrateAll moves every instance owned by from to the definition to.
	// It returns the number of rows changed.
	MigrateAll(ctx context.Context, from, to DefinitionKey) (int64, error)

	// MigrateInstances moves the listed instances owned by from to the
	// definition to. It returns the number of rows changed.
	MigrateInstances(ctx context.Context, from, to DefinitionKey, ids []string) (int64, error)
}
