package vistore

import (
	"context"
	"fmt"
)

// Reloader fetches the latest durable state of a detached instance.
type Reloader[T any] interface {
	Reload(ctx context.Context) (T, error)
}

// ReloaderFunc adapts a function to the Reloader interface.
type ReloaderFunc[T any] func(ctx context.Context) (T, error)

// Reload calls f(ctx).
func (f ReloaderFunc[T]) Reload(ctx context.Context) (T, error) {
	return f(ctx)
}

// detach drops the live state of inst and installs a reloader bound to id.
func (s *Store[T]) detach(id string, inst T) {
	inst.DropLiveState()
	inst.InstallReloader(s.reloader(id))
}

// reloader returns a Reloader that reads id afresh, decodes it in Mutable
// mode and stamps the stored version. The returned instance is live.
// A missing row yields ErrInstanceVanished.
func (s *Store[T]) reloader(id string) Reloader[T] {
	return ReloaderFunc[T](func(ctx context.Context) (T, error) {
		var zero T

		rec, err := s.selectRecord(ctx, OpReload, id)
		if err != nil {
			return zero, err
		}
		if rec == nil {
			s.cfg.logger.Error("detached instance vanished",
				"instance_id", id,
				"definition", s.def.String(),
			)
			return zero, fmt.Errorf("%w: %s under definition %s", ErrInstanceVanished, id, s.def)
		}

		inst, err := s.marshaller.Unmarshal(rec.Payload, definitionFromRecord(rec), Mutable)
		if err != nil {
			return zero, fmt.Errorf("failed to unmarshal instance %s: %w", id, err)
		}
		inst.SetVersion(rec.Version)
		return inst, nil
	})
}
