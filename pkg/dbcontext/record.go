package dbcontext

import (
	"sync"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultDatabaseName is the database a flow targets until told otherwise.
const DefaultDatabaseName = "Default"

// Record is the per-flow database context: which database the flow is
// currently operating against, whether a connection is live, and a
// memoizing cache for flow-scoped lookups.
type Record struct {
	mu           sync.Mutex
	databaseName string
	connActive   bool

	items  *cache.Cache
	flight singleflight.Group
}

// NewRecord returns a default record targeting DefaultDatabaseName with an
// empty cache.
func NewRecord() *Record {
	return &Record{
		databaseName: DefaultDatabaseName,
		items:        cache.New(cache.NoExpiration, 0),
	}
}

// DatabaseName returns the database this record targets.
func (r *Record) DatabaseName() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.databaseName
}

// SetDatabaseName retargets the record.
func (r *Record) SetDatabaseName(name string) {
	r.mu.Lock()
	r.databaseName = name
	r.mu.Unlock()
}

// ConnectionActive reports whether the flow currently holds a live
// connection. Maintained by connection factories, consumed by repositories.
func (r *Record) ConnectionActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connActive
}

// SetConnectionActive marks the connection state.
func (r *Record) SetConnectionActive(active bool) {
	r.mu.Lock()
	r.connActive = active
	r.mu.Unlock()
}

// Clear empties the cache and resets the connection flag. The database name
// is kept; use Ambient.Clear to reset the whole record for a flow.
func (r *Record) Clear() {
	r.mu.Lock()
	r.connActive = false
	r.mu.Unlock()
	r.items.Flush()
}

// getOrCreate is the untyped memoized accessor. Concurrent callers on the
// same key are collapsed so the factory runs exactly once.
func (r *Record) getOrCreate(key string, factory func() (any, error)) (any, error) {
	if v, ok := r.items.Get(key); ok {
		return v, nil
	}
	v, err, _ := r.flight.Do(key, func() (any, error) {
		// Another caller may have populated the key between the miss and
		// the flight.
		if v, ok := r.items.Get(key); ok {
			return v, nil
		}
		v, err := factory()
		if err != nil {
			return nil, err
		}
		r.items.Set(key, v, cache.NoExpiration)
		return v, nil
	})
	return v, err
}

// GetOrCreate returns the cached value for key, invoking factory exactly
// once to populate it on first use. A factory error is returned to the
// caller and nothing is cached, so a later call may retry.
func GetOrCreate[V any](r *Record, key string, factory func() (V, error)) (V, error) {
	v, err := r.getOrCreate(key, func() (any, error) {
		return factory()
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// clone copies the record for copy-on-branch propagation: scalar state and
// cache entries are carried over, in-flight factory calls are not.
func (r *Record) clone() *Record {
	r.mu.Lock()
	cp := &Record{
		databaseName: r.databaseName,
		connActive:   r.connActive,
		items:        cache.New(cache.NoExpiration, 0),
	}
	r.mu.Unlock()

	for k, item := range r.items.Items() {
		cp.items.Set(k, item.Object, cache.NoExpiration)
	}
	return cp
}
