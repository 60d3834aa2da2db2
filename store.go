package vistore

import (
	"context"
	"fmt"

	"github.com/i2y/vistore/hooks"
	"github.com/i2y/vistore/internal/storage"
)

// Instance is the runtime object persisted by a Store. T is the concrete
// instance type, usually a pointer.
//
// Active reports whether the instance has anything worth persisting; inactive
// instances are detached but never written. DropLiveState and InstallReloader
// implement the detach protocol: after every persistence boundary the store
// drops the live runtime state and installs a Reloader that fetches the latest
// durable state on demand.
type Instance[T any] interface {
	Active() bool
	Version() int64
	SetVersion(v int64)
	DropLiveState()
	InstallReloader(r Reloader[T])
}

// storeCore holds the parts of a Store that do not depend on T.
type storeCore struct {
	storage storage.Storage
	def     Definition
	cfg     *storeConfig
}

// Store persists instances of one definition. It holds no mutable state of
// its own and is safe for concurrent use.
//
// Migration operations are not coordinated with concurrent updates or
// removals of the same instances; run them while no other writer touches the
// definition.
type Store[T Instance[T]] struct {
	*storeCore
	marshaller Marshaller[T]
}

// NewStore returns a store scoped to def on db.
func NewStore[T Instance[T]](db *Database, def Definition, m Marshaller[T], opts ...Option) *Store[T] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Store[T]{
		storeCore:  &storeCore{storage: db.storage, def: def, cfg: cfg},
		marshaller: m,
	}
}

// Definition returns the definition the store is scoped to.
func (s *Store[T]) Definition() Definition {
	return s.def
}

// Exists reports whether an instance with id is stored under the definition.
func (s *Store[T]) Exists(ctx context.Context, id string) (bool, error) {
	rec, err := s.selectRecord(ctx, OpExists, id)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Create inserts inst at version 0. Inactive instances are only detached.
// Returns a *DuplicateKeyError if id already exists under the definition.
func (s *Store[T]) Create(ctx context.Context, id string, inst T) error {
	defer s.detach(id, inst)

	if !inst.Active() {
		s.cfg.logger.Debug("skipping create of inactive instance", "instance_id", id)
		return nil
	}

	payload, err := s.marshaller.Marshal(inst)
	if err != nil {
		return fmt.Errorf("failed to marshal instance %s: %w", id, err)
	}

	_, err = await(ctx, s.storeCore, OpCreate, id, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.storage.InsertInstance(ctx, &storage.InstanceRecord{
			ID:                id,
			DefinitionID:      s.def.ID,
			DefinitionVersion: s.def.Version,
			Payload:           payload,
			Version:           0,
		})
	})
	if err != nil {
		return err
	}
	inst.SetVersion(0)
	return nil
}

// Update writes inst back. Inactive instances are only detached and false is
// returned.
//
// With locking enabled the write is a compare-and-swap against inst.Version();
// on success the instance version is advanced, on a lost race a
// *OptimisticLockConflictError is returned. With locking disabled the payload
// is overwritten and Update reports whether exactly one row matched.
func (s *Store[T]) Update(ctx context.Context, id string, inst T) (bool, error) {
	defer s.detach(id, inst)

	if !inst.Active() {
		s.cfg.logger.Debug("skipping update of inactive instance", "instance_id", id)
		return false, nil
	}

	payload, err := s.marshaller.Marshal(inst)
	if err != nil {
		return false, fmt.Errorf("failed to marshal instance %s: %w", id, err)
	}

	if s.cfg.locking {
		expected := inst.Version()
		if err := s.UpdateWithLock(ctx, id, payload, expected); err != nil {
			return false, err
		}
		inst.SetVersion(expected + 1)
		return true, nil
	}

	return await(ctx, s.storeCore, OpUpdate, id, func(ctx context.Context) (bool, error) {
		return s.storage.UpdateInstance(ctx, s.def.key(), id, payload)
	})
}

// UpdateWithLock overwrites the payload and advances the version to
// expected+1 in one statement, provided the stored version is still expected.
// Otherwise it returns a *OptimisticLockConflictError and changes nothing.
func (s *Store[T]) UpdateWithLock(ctx context.Context, id string, payload []byte, expected int64) error {
	_, err := await(ctx, s.storeCore, OpUpdateWithLock, id, func(ctx context.Context) (struct{}, error) {
		ok, err := s.storage.UpdateInstanceWithLock(ctx, s.def.key(), id, payload, expected)
		if err != nil {
			return struct{}{}, err
		}
		if !ok {
			s.cfg.hooks.OnConflict(ctx, hooks.ConflictInfo{
				Definition:      s.def.String(),
				InstanceID:      id,
				ExpectedVersion: expected,
			})
			s.cfg.recorder.IncConflict(s.def.String())
			s.cfg.logger.Debug("optimistic lock conflict",
				"instance_id", id,
				"definition", s.def.String(),
				"expected_version", expected,
			)
			return struct{}{}, &OptimisticLockConflictError{InstanceID: id, ExpectedVersion: expected}
		}
		return struct{}{}, nil
	})
	return err
}

// Remove deletes the instance and reports whether it existed.
func (s *Store[T]) Remove(ctx context.Context, id string) (bool, error) {
	return await(ctx, s.storeCore, OpRemove, id, func(ctx context.Context) (bool, error) {
		return s.storage.DeleteInstance(ctx, s.def.key(), id)
	})
}

// Find loads the instance with id. The returned instance carries the stored
// version and is already detached.
func (s *Store[T]) Find(ctx context.Context, id string, mode ReadMode) (T, bool, error) {
	var zero T

	rec, err := s.selectRecord(ctx, OpFind, id)
	if err != nil || rec == nil {
		return zero, false, err
	}

	inst, err := s.materialize(rec, mode)
	if err != nil {
		return zero, false, err
	}
	return inst, true, nil
}

// Stream returns a one-shot iterator over every instance of the definition,
// ordered by id. The rows are read within a single query timeout; decoding
// happens lazily as the iterator advances.
func (s *Store[T]) Stream(ctx context.Context, mode ReadMode) (*Iterator[T], error) {
	records, err := await(ctx, s.storeCore, OpStream, "", func(ctx context.Context) ([]*storage.InstanceRecord, error) {
		return s.storage.SelectInstances(ctx, s.def.key())
	})
	if err != nil {
		return nil, err
	}
	return newIterator(records, func(rec *storage.InstanceRecord) (T, error) {
		return s.materialize(rec, mode)
	}), nil
}

// MigrateAll moves every instance of the store's definition to target and
// returns the number of instances moved. Versions are left untouched.
func (s *Store[T]) MigrateAll(ctx context.Context, target Definition) (int64, error) {
	n, err := await(ctx, s.storeCore, OpMigrateAll, "", func(ctx context.Context) (int64, error) {
		n, err := s.storage.MigrateAll(ctx, s.def.key(), target.key())
		if err == nil {
			s.migrated(ctx, target, 0, n)
		}
		return n, err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// MigrateInstances moves the listed instances of the store's definition to
// target. Ids that do not exist under the definition are ignored; re-query to
// confirm which instances moved.
func (s *Store[T]) MigrateInstances(ctx context.Context, target Definition, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := await(ctx, s.storeCore, OpMigrateInstances, "", func(ctx context.Context) (int64, error) {
		n, err := s.storage.MigrateInstances(ctx, s.def.key(), target.key(), ids)
		if err == nil {
			s.migrated(ctx, target, len(ids), n)
		}
		return n, err
	})
	return err
}

func (c *storeCore) migrated(ctx context.Context, target Definition, requested int, n int64) {
	c.cfg.hooks.OnMigrate(ctx, hooks.MigrateInfo{
		From:      c.def.String(),
		To:        target.String(),
		Requested: requested,
		Affected:  n,
	})
	c.cfg.recorder.AddMigrated(c.def.String(), target.String(), n)
	c.cfg.logger.Info("migrated instances",
		"from", c.def.String(),
		"to", target.String(),
		"requested", requested,
		"affected", n,
	)
}

func (c *storeCore) selectRecord(ctx context.Context, op, id string) (*storage.InstanceRecord, error) {
	return await(ctx, c, op, id, func(ctx context.Context) (*storage.InstanceRecord, error) {
		return c.storage.SelectInstance(ctx, c.def.key(), id)
	})
}

// materialize decodes rec, stamps its version and detaches it.
func (s *Store[T]) materialize(rec *storage.InstanceRecord, mode ReadMode) (T, error) {
	inst, err := s.marshaller.Unmarshal(rec.Payload, definitionFromRecord(rec), mode)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("failed to unmarshal instance %s: %w", rec.ID, err)
	}
	inst.SetVersion(rec.Version)
	s.detach(rec.ID, inst)
	return inst, nil
}
