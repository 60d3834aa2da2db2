package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// migrateBatchSize bounds the number of IDs bound into a single IN list.
const migrateBatchSize = 500

// txKey is the context key for transactions.
type txKey struct{}

// txState holds transaction state.
type txState struct {
	tx *sql.Tx
}

// sqlStorage is the dialect-independent implementation shared by the
// SQLite, PostgreSQL and MySQL storages.
type sqlStorage struct {
	db     *sql.DB
	driver Driver
}

// DriverName returns the SQL dialect name.
func (s *sqlStorage) DriverName() string {
	return s.driver.DriverName()
}

// Driver returns the dialect driver.
func (s *sqlStorage) Driver() Driver {
	return s.driver
}

// DB returns the underlying database connection.
func (s *sqlStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *sqlStorage) Close() error {
	return s.db.Close()
}

// getConn returns the appropriate database handle based on context (internal use).
func (s *sqlStorage) getConn(ctx context.Context) Executor {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		return state.tx
	}
	return s.db
}

// --- Transaction Manager ---

// BeginTransaction starts a new transaction.
func (s *sqlStorage) BeginTransaction(ctx context.Context) (context.Context, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, err
	}
	return context.WithValue(ctx, txKey{}, &txState{tx: tx}), nil
}

// CommitTransaction commits the current transaction.
func (s *sqlStorage) CommitTransaction(ctx context.Context) error {
	state, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return fmt.Errorf("no transaction in context")
	}
	return state.tx.Commit()
}

// RollbackTransaction rolls back the current transaction.
func (s *sqlStorage) RollbackTransaction(ctx context.Context) error {
	state, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		return nil // No transaction to rollback
	}
	return state.tx.Rollback()
}

// InTransaction returns whether a transaction is in progress.
func (s *sqlStorage) InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// Conn returns the database executor for the current context.
func (s *sqlStorage) Conn(ctx context.Context) Executor {
	return s.getConn(ctx)
}

// --- Instance Manager ---

// InsertInstance inserts a new instance row.
func (s *sqlStorage) InsertInstance(ctx context.Context, rec *InstanceRecord) error {
	q := newQuery(s.driver, "INSERT INTO "+InstancesTable+
		" (id, payload, definition_id, definition_version, version) VALUES (")
	q.write(strings.Join([]string{
		q.bind(rec.ID),
		q.bind(nonNilPayload(rec.Payload)),
		q.bind(rec.DefinitionID),
		q.bind(nullString(rec.DefinitionVersion)),
		q.bind(rec.Version),
	}, ", ")).write(")")

	_, err := s.getConn(ctx).ExecContext(ctx, q.String(), q.args...)
	if err != nil {
		if s.driver.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, rec.ID)
		}
		return err
	}
	return nil
}

// UpdateInstance overwrites the payload of the row regardless of its version.
func (s *sqlStorage) UpdateInstance(ctx context.Context, def DefinitionKey, id string, payload []byte) (bool, error) {
	q := newQuery(s.driver, "UPDATE "+InstancesTable+" SET payload = ")
	q.write(q.bind(nonNilPayload(payload)))
	q.write(" WHERE id = ").write(q.bind(id)).write(" AND ")
	definitionPredicate(q, def)

	return s.execSingle(ctx, q)
}

// UpdateInstanceWithLock performs the compare-and-swap in a single statement:
// the version check lives in the WHERE clause, so no row lock or read-then-write
// transaction is needed.
func (s *sqlStorage) UpdateInstanceWithLock(ctx context.Context, def DefinitionKey, id string, payload []byte, expected int64) (bool, error) {
	q := newQuery(s.driver, "UPDATE "+InstancesTable+" SET payload = ")
	q.write(q.bind(nonNilPayload(payload)))
	q.write(", version = ").write(q.bind(expected + 1))
	q.write(" WHERE id = ").write(q.bind(id)).write(" AND ")
	definitionPredicate(q, def)
	q.write(" AND version = ").write(q.bind(expected))

	return s.execSingle(ctx, q)
}

// DeleteInstance deletes the row matching id and def.
func (s *sqlStorage) DeleteInstance(ctx context.Context, def DefinitionKey, id string) (bool, error) {
	q := newQuery(s.driver, "DELETE FROM "+InstancesTable+" WHERE id = ")
	q.write(q.bind(id)).write(" AND ")
	definitionPredicate(q, def)

	return s.execSingle(ctx, q)
}

// SelectInstance loads a single row.
func (s *sqlStorage) SelectInstance(ctx context.Context, def DefinitionKey, id string) (*InstanceRecord, error) {
	q := newQuery(s.driver, "SELECT id, payload, definition_id, definition_version, version FROM "+
		InstancesTable+" WHERE id = ")
	q.write(q.bind(id)).write(" AND ")
	definitionPredicate(q, def)

	rec, err := scanInstance(s.getConn(ctx).QueryRowContext(ctx, q.String(), q.args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// SelectInstances loads every row owned by def.
func (s *sqlStorage) SelectInstances(ctx context.Context, def DefinitionKey) ([]*InstanceRecord, error) {
	q := newQuery(s.driver, "SELECT id, payload, definition_id, definition_version, version FROM "+
		InstancesTable+" WHERE ")
	definitionPredicate(q, def)
	q.write(" ORDER BY id")

	rows, err := s.getConn(ctx).QueryContext(ctx, q.String(), q.args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*InstanceRecord
	for rows.Next() {
		rec, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// --- Migration Manager ---

// MigrateAll rewrites the definition of every row owned by from.
func (s *sqlStorage) MigrateAll(ctx context.Context, from, to DefinitionKey) (int64, error) {
	q := migrateQuery(s.driver, from, to)

	res, err := s.getConn(ctx).ExecContext(ctx, q.String(), q.args...)
	if err != nil {
		if s.driver.IsUniqueViolation(err) {
			return 0, fmt.Errorf("%w: migrating %s", ErrDuplicateKey, from.ID)
		}
		return 0, err
	}
	return res.RowsAffected()
}

// MigrateInstances rewrites the definition of the listed rows owned by from.
//
// Long ID lists are split into batches. Unless the caller already holds a
// transaction, the batches run in one so the rewrite stays all-or-nothing.
func (s *sqlStorage) MigrateInstances(ctx context.Context, from, to DefinitionKey, ids []string) (affected int64, err error) {
	if len(ids) == 0 {
		return 0, nil
	}

	if !s.InTransaction(ctx) && len(ids) > migrateBatchSize {
		var txCtx context.Context
		txCtx, err = s.BeginTransaction(ctx)
		if err != nil {
			return 0, err
		}
		defer func() {
			if err != nil {
				if rbErr := s.RollbackTransaction(txCtx); rbErr != nil {
					slog.Debug("rollback after failed migration", "error", rbErr)
				}
				return
			}
			err = s.CommitTransaction(txCtx)
		}()
		ctx = txCtx
	}

	for start := 0; start < len(ids); start += migrateBatchSize {
		end := min(start+migrateBatchSize, len(ids))

		q := migrateQuery(s.driver, from, to)
		q.write(" AND id IN (")
		for i, id := range ids[start:end] {
			if i > 0 {
				q.write(", ")
			}
			q.write(q.bind(id))
		}
		q.write(")")

		res, err := s.getConn(ctx).ExecContext(ctx, q.String(), q.args...)
		if err != nil {
			if s.driver.IsUniqueViolation(err) {
				return affected, fmt.Errorf("%w: migrating %s", ErrDuplicateKey, from.ID)
			}
			return affected, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return affected, err
		}
		affected += n
	}

	return affected, nil
}

// migrateQuery builds the shared UPDATE ... SET definition ... WHERE predicate.
func migrateQuery(d Driver, from, to DefinitionKey) *query {
	q := newQuery(d, "UPDATE "+InstancesTable+" SET definition_id = ")
	q.write(q.bind(to.ID))
	q.write(", definition_version = ").write(q.bind(nullString(to.Version)))
	q.write(" WHERE ")
	definitionPredicate(q, from)
	return q
}

// execSingle runs q and reports whether exactly one row was affected.
func (s *sqlStorage) execSingle(ctx context.Context, q *query) (bool, error) {
	res, err := s.getConn(ctx).ExecContext(ctx, q.String(), q.args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanInstance(row rowScanner) (*InstanceRecord, error) {
	var rec InstanceRecord
	var version sql.NullString

	if err := row.Scan(&rec.ID, &rec.Payload, &rec.DefinitionID, &version, &rec.Version); err != nil {
		return nil, err
	}
	if version.Valid {
		v := version.String
		rec.DefinitionVersion = &v
	}
	return &rec, nil
}

// nonNilPayload maps a nil payload to an empty one; the column is NOT NULL.
func nonNilPayload(p []byte) []byte {
	if p == nil {
		return []byte{}
	}
	return p
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
