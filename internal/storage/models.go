// Package storage provides the SQL storage layer for versioned instances.
package storage

// InstancesTable is the table holding one row per stored instance.
const InstancesTable = "process_instances"

// DefinitionKey identifies the definition that owns a set of instances.
//
// A nil Version means the definition is unversioned. It is never encoded as a
// sentinel string, so it cannot collide with a real version such as "null".
type DefinitionKey struct {
	ID      string
	Version *string
}

// InstanceRecord is one persisted instance row.
type InstanceRecord struct {
	ID                string  `json:"id"`
	DefinitionID      string  `json:"definition_id"`
	DefinitionVersion *string `json:"definition_version"`
	Payload           []byte  `json:"payload"`
	Version           int64   `json:"version"`
}

// Definition returns the key of the definition that owns the record.
func (r *InstanceRecord) Definition() DefinitionKey {
	return DefinitionKey{ID: r.DefinitionID, Version: r.DefinitionVersion}
}
