package vistore

import (
	"github.com/i2y/vistore/internal/storage"
)

// Definition identifies the versioned template that owns a set of instances.
// A nil Version means the definition is unversioned; that is distinct from
// any version string, including "" and "null".
type Definition struct {
	ID      string
	Version *string
}

// Versioned returns a definition with an explicit version.
func Versioned(id, version string) Definition {
	return Definition{ID: id, Version: &version}
}

// Unversioned returns a definition without a version.
func Unversioned(id string) Definition {
	return Definition{ID: id}
}

// IsVersioned reports whether d carries a version.
func (d Definition) IsVersioned() bool {
	return d.Version != nil
}

// String renders d as "id@version", or just "id" when unversioned.
func (d Definition) String() string {
	if d.Version == nil {
		return d.ID
	}
	return d.ID + "@" + *d.Version
}

func (d Definition) key() storage.DefinitionKey {
	return storage.DefinitionKey{ID: d.ID, Version: d.Version}
}

func definitionFromRecord(rec *storage.InstanceRecord) Definition {
	return Definition{ID: rec.DefinitionID, Version: rec.DefinitionVersion}
}
