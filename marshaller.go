package vistore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
)

// ReadMode tells a Marshaller whether the reconstructed instance may be
// mutated and written back.
type ReadMode int

const (
	// ReadOnly instances are for inspection only.
	ReadOnly ReadMode = iota
	// Mutable instances may be changed and passed to Store.Update.
	Mutable
)

func (m ReadMode) String() string {
	switch m {
	case ReadOnly:
		return "read-only"
	case Mutable:
		return "mutable"
	default:
		return fmt.Sprintf("ReadMode(%d)", int(m))
	}
}

// Marshaller converts runtime instances to and from the opaque payload stored
// in the database. The store never inspects payload bytes itself.
type Marshaller[T any] interface {
	Marshal(inst T) ([]byte, error)
	Unmarshal(payload []byte, def Definition, mode ReadMode) (T, error)
}

// ErrReadOnlyInstance is returned when mutating an instance read in ReadOnly mode.
var ErrReadOnlyInstance = errors.New("instance is read-only")

// RawInstance is an Instance whose runtime state is the payload itself.
// It is used by administrative tooling that moves payloads around without
// understanding them.
type RawInstance struct {
	mu         sync.Mutex
	definition Definition
	payload    []byte
	live       bool
	active     bool
	readOnly   bool
	version    int64
	reloader   Reloader[*RawInstance]
}

// NewRawInstance returns an active, mutable instance holding payload.
func NewRawInstance(payload []byte) *RawInstance {
	return &RawInstance{
		payload: bytes.Clone(payload),
		live:    true,
		active:  true,
	}
}

// Active reports whether the instance should be persisted on create/update.
func (r *RawInstance) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// SetActive marks the instance active or inactive.
func (r *RawInstance) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

// Definition returns the definition the instance was read under, if any.
func (r *RawInstance) Definition() Definition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.definition
}

// ReadOnly reports whether the instance was read in ReadOnly mode.
func (r *RawInstance) ReadOnly() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readOnly
}

func (r *RawInstance) Version() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

func (r *RawInstance) SetVersion(v int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = v
}

// Live reports whether the instance currently holds its payload in memory.
func (r *RawInstance) Live() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *RawInstance) DropLiveState() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payload = nil
	r.live = false
}

func (r *RawInstance) InstallReloader(rl Reloader[*RawInstance]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reloader = rl
}

// Payload returns the payload, reloading it from the store first if the
// instance has been detached.
func (r *RawInstance) Payload(ctx context.Context) ([]byte, error) {
	if err := r.ensureLive(ctx); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return bytes.Clone(r.payload), nil
}

// SetPayload replaces the payload. The instance becomes live again without
// consulting the store.
func (r *RawInstance) SetPayload(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readOnly {
		return ErrReadOnlyInstance
	}
	r.payload = bytes.Clone(payload)
	r.live = true
	return nil
}

func (r *RawInstance) ensureLive(ctx context.Context) error {
	r.mu.Lock()
	if r.live {
		r.mu.Unlock()
		return nil
	}
	rl := r.reloader
	r.mu.Unlock()

	if rl == nil {
		return errors.New("detached instance has no reloader")
	}
	fresh, err := rl.Reload(ctx)
	if err != nil {
		return err
	}

	fresh.mu.Lock()
	payload, version := fresh.payload, fresh.version
	fresh.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.payload = payload
	r.version = version
	r.live = true
	return nil
}

// RawMarshaller stores RawInstance payloads verbatim.
type RawMarshaller struct{}

func (RawMarshaller) Marshal(inst *RawInstance) ([]byte, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if !inst.live {
		return nil, errors.New("cannot marshal a detached instance")
	}
	return bytes.Clone(inst.payload), nil
}

func (RawMarshaller) Unmarshal(payload []byte, def Definition, mode ReadMode) (*RawInstance, error) {
	inst := NewRawInstance(payload)
	inst.definition = def
	inst.readOnly = mode == ReadOnly
	return inst, nil
}
