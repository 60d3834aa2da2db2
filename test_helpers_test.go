package vistore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// createTestDatabase opens a fresh SQLite database with the bundled schema
// applied. It is closed when the test ends.
func createTestDatabase(t *testing.T, opts ...DatabaseOption) *Database {
	t.Helper()

	path := filepath.Join(t.TempDir(), "vistore-"+uuid.NewString()+".db")
	db, err := OpenDatabase(context.Background(), path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newRawStore returns a RawInstance store scoped to def.
func newRawStore(db *Database, def Definition, opts ...Option) *Store[*RawInstance] {
	return NewStore[*RawInstance](db, def, RawMarshaller{}, opts...)
}

// payloadOf reads the payload of inst, reloading it if detached.
func payloadOf(t *testing.T, inst *RawInstance) string {
	t.Helper()

	p, err := inst.Payload(context.Background())
	require.NoError(t, err)
	return string(p)
}
