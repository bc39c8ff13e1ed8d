package routing

import (
	"fmt"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"
)

// MetadataProvider supplies author-declared database assignments for types
// and operations. Declared metadata sits between explicit registration and
// the ambient fallback in resolution precedence.
type MetadataProvider interface {
	// DatabaseForType returns the declared database for an entity type.
	DatabaseForType(t reflect.Type) (DatabaseID, bool)

	// DatabaseForOperation returns the declared database for an operation
	// identity.
	DatabaseForOperation(identity string) (DatabaseID, bool)
}

// DatabaseNamer lets an entity type declare its database in code. The
// declaration travels with the type the way an annotation would.
type DatabaseNamer interface {
	DeclaredDatabase() DatabaseID
}

var databaseNamerType = reflect.TypeOf((*DatabaseNamer)(nil)).Elem()

// DeclaredProvider reads declarations from the DatabaseNamer interface.
// It never declares anything for operations.
type DeclaredProvider struct{}

// DatabaseForType checks whether t (or *t, for value types with pointer
// receivers) implements DatabaseNamer and returns its declaration.
func (DeclaredProvider) DatabaseForType(t reflect.Type) (DatabaseID, bool) {
	if t == nil {
		return "", false
	}
	base := t
	for base.Kind() == reflect.Pointer {
		base = base.Elem()
	}
	// reflect.New yields an addressable zero value, safe for both value and
	// pointer receivers; a zero pointer would panic on a value receiver.
	if reflect.PointerTo(base).Implements(databaseNamerType) {
		return reflect.New(base).Interface().(DatabaseNamer).DeclaredDatabase(), true
	}
	if base.Kind() != reflect.Interface && base.Implements(databaseNamerType) {
		return reflect.Zero(base).Interface().(DatabaseNamer).DeclaredDatabase(), true
	}
	return "", false
}

// DatabaseForOperation always reports no declaration.
func (DeclaredProvider) DatabaseForOperation(string) (DatabaseID, bool) {
	return "", false
}

// StaticProvider holds name-keyed declarations, typically loaded from
// configuration. Entity types match on either the qualified name
// ("models.Order") or the bare name ("Order").
type StaticProvider struct {
	mu         sync.RWMutex
	entities   map[string]DatabaseID
	operations map[string]DatabaseID
}

// NewStaticProvider creates a provider from the given tables. Nil maps are
// allowed.
func NewStaticProvider(entities, operations map[string]DatabaseID) *StaticProvider {
	p := &StaticProvider{
		entities:   make(map[string]DatabaseID, len(entities)),
		operations: make(map[string]DatabaseID, len(operations)),
	}
	for k, v := range entities {
		p.entities[k] = v
	}
	for k, v := range operations {
		p.operations[k] = v
	}
	return p
}

// staticRules is the YAML shape of a routing declaration file.
type staticRules struct {
	Entities   map[string]string `yaml:"entities"`
	Operations map[string]string `yaml:"operations"`
}

// ParseStaticRules builds a StaticProvider from YAML of the form:
//
//	entities:
//	  Order: Sales
//	operations:
//	  OrderService.Archive: Archive
func ParseStaticRules(data []byte) (*StaticProvider, error) {
	var rules staticRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse routing rules: %w", err)
	}
	p := NewStaticProvider(nil, nil)
	for name, db := range rules.Entities {
		p.entities[name] = DatabaseID(db)
	}
	for identity, db := range rules.Operations {
		p.operations[identity] = DatabaseID(db)
	}
	return p, nil
}

// DatabaseForType matches the type's qualified name, then its bare name.
func (p *StaticProvider) DatabaseForType(t reflect.Type) (DatabaseID, bool) {
	if t == nil {
		return "", false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if db, ok := p.entities[t.String()]; ok {
		return db, true
	}
	if name := t.Name(); name != "" {
		if db, ok := p.entities[name]; ok {
			return db, true
		}
	}
	return "", false
}

// DatabaseForTypeName matches a bare type name, for callers that only have
// a name (the CLI) rather than a reflect.Type.
func (p *StaticProvider) DatabaseForTypeName(name string) (DatabaseID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, ok := p.entities[name]
	return db, ok
}

// DatabaseForOperation matches the operation identity exactly.
func (p *StaticProvider) DatabaseForOperation(identity string) (DatabaseID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	db, ok := p.operations[identity]
	return db, ok
}

// ChainProvider composes providers; the first declaration wins.
type ChainProvider []MetadataProvider

// DatabaseForType returns the first provider's declaration for t.
func (c ChainProvider) DatabaseForType(t reflect.Type) (DatabaseID, bool) {
	for _, p := range c {
		if db, ok := p.DatabaseForType(t); ok {
			return db, true
		}
	}
	return "", false
}

// DatabaseForOperation returns the first provider's declaration for identity.
func (c ChainProvider) DatabaseForOperation(identity string) (DatabaseID, bool) {
	for _, p := range c {
		if db, ok := p.DatabaseForOperation(identity); ok {
			return db, true
		}
	}
	return "", false
}
