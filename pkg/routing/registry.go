// Package routing decides which database an entity type or operation
// targets. Explicit registrations win over declared metadata, which wins
// over the flow's ambient database context.
package routing

import (
	"reflect"
	"sync"
)

// DatabaseID identifies a configured database.
type DatabaseID string

// DefaultDatabase is the process-wide fallback identifier.
const DefaultDatabase DatabaseID = "Default"

// Registry holds explicit operator-provided routing overrides. Entries are
// upserts with last-write-wins semantics and live for the process lifetime;
// there is no deletion API. Shared, rarely mutated, frequently read.
type Registry struct {
	mu         sync.RWMutex
	entities   map[reflect.Type]DatabaseID
	operations map[string]DatabaseID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entities:   make(map[reflect.Type]DatabaseID),
		operations: make(map[string]DatabaseID),
	}
}

// RegisterEntity maps an entity type to a database, overwriting any
// previous mapping.
func (r *Registry) RegisterEntity(t reflect.Type, db DatabaseID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[t] = db
}

// RegisterEntityFor is the generic convenience form of RegisterEntity.
func RegisterEntityFor[T any](r *Registry, db DatabaseID) {
	r.RegisterEntity(reflect.TypeOf((*T)(nil)).Elem(), db)
}

// RegisterOperation maps an operation identity (a stable method signature
// key) to a database, overwriting any previous mapping. Equal identities
// collide; the last write wins.
func (r *Registry) RegisterOperation(identity string, db DatabaseID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operations[identity] = db
}

// EntityDatabase looks up the explicit mapping for an entity type. Absence
// means "no explicit mapping", never an error.
func (r *Registry) EntityDatabase(t reflect.Type) (DatabaseID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.entities[t]
	return db, ok
}

// OperationDatabase looks up the explicit mapping for an operation identity.
func (r *Registry) OperationDatabase(identity string) (DatabaseID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	db, ok := r.operations[identity]
	return db, ok
}
