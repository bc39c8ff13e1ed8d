package routing

import (
	"context"
	"reflect"

	"go.uber.org/zap"

	"github.com/stratumhq/dbflow/pkg/dbcontext"
)

// Operation describes a callable operation for routing purposes.
type Operation struct {
	// Identity uniquely identifies the operation, e.g.
	// "OrderService.ListOrders". Equal identities collide in the registry.
	Identity string

	// Result is the operation's declared result type. May be nil when the
	// operation returns nothing routable.
	Result reflect.Type
}

// OperationFor builds an Operation whose result type is T.
func OperationFor[T any](identity string) Operation {
	return Operation{
		Identity: identity,
		Result:   reflect.TypeOf((*T)(nil)).Elem(),
	}
}

// Resolution tiers, in precedence order. Used as metric labels and in debug
// logs.
const (
	TierOperationRegistration = "operation_registration"
	TierOperationMetadata     = "operation_metadata"
	TierEntityRegistration    = "entity_registration"
	TierEntityMetadata        = "entity_metadata"
	TierAmbient               = "ambient"
)

// RouterConfig wires a Router. Registry is required; everything else is
// optional and degrades to the ambient/default fallback.
type RouterConfig struct {
	Registry *Registry
	Metadata MetadataProvider
	Unwrap   Unwrapper
	Ambient  *dbcontext.Ambient
	Logger   *zap.Logger
	Metrics  *Metrics
}

// Router resolves the target database for operations and entity types.
// Resolution never fails: an unmapped, unannotated operation in a flow that
// never set an ambient database resolves to DefaultDatabase.
type Router struct {
	registry *Registry
	metadata MetadataProvider
	unwrap   Unwrapper
	ambient  *dbcontext.Ambient
	logger   *zap.Logger
	metrics  *Metrics
}

// NewRouter creates a Router from cfg. A nil cfg.Registry gets an empty one
// so the router is usable with ambient-only resolution.
func NewRouter(cfg RouterConfig) *Router {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	if cfg.Unwrap == nil {
		cfg.Unwrap = DefaultUnwrapper{}
	}
	return &Router{
		registry: cfg.Registry,
		metadata: cfg.Metadata,
		unwrap:   cfg.Unwrap,
		ambient:  cfg.Ambient,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Registry returns the router's registration tables, for callers that
// register explicit overrides after construction.
func (r *Router) Registry() *Registry {
	return r.registry
}

// ResolveForOperation picks the database for an operation. Precedence:
//
//  1. explicit operation registration
//  2. declared operation metadata
//  3. the operation's effective result entity type, via
//     a. explicit entity registration
//     b. declared entity metadata
//  4. the flow's ambient database
func (r *Router) ResolveForOperation(ctx context.Context, op Operation) DatabaseID {
	if db, ok := r.registry.OperationDatabase(op.Identity); ok {
		return r.resolved("operation", op.Identity, TierOperationRegistration, db)
	}
	if r.metadata != nil {
		if db, ok := r.metadata.DatabaseForOperation(op.Identity); ok {
			return r.resolved("operation", op.Identity, TierOperationMetadata, db)
		}
	}
	if op.Result != nil {
		entity := effectiveEntityType(r.unwrap, op.Result)
		if db, tier, ok := r.resolveEntity(entity); ok {
			return r.resolved("operation", op.Identity, tier, db)
		}
	}
	return r.resolved("operation", op.Identity, TierAmbient, r.ambientDatabase(ctx))
}

// ResolveForType picks the database for an entity type: explicit
// registration, then declared metadata, then the flow's ambient database.
func (r *Router) ResolveForType(ctx context.Context, t reflect.Type) DatabaseID {
	name := ""
	if t != nil {
		name = t.String()
	}
	if db, tier, ok := r.resolveEntity(t); ok {
		return r.resolved("type", name, tier, db)
	}
	return r.resolved("type", name, TierAmbient, r.ambientDatabase(ctx))
}

// ResolveFor is the generic convenience form of ResolveForType.
func ResolveFor[T any](ctx context.Context, r *Router) DatabaseID {
	return r.ResolveForType(ctx, reflect.TypeOf((*T)(nil)).Elem())
}

func (r *Router) resolveEntity(t reflect.Type) (DatabaseID, string, bool) {
	if t == nil {
		return "", "", false
	}
	if db, ok := r.registry.EntityDatabase(t); ok {
		return db, TierEntityRegistration, true
	}
	if r.metadata != nil {
		if db, ok := r.metadata.DatabaseForType(t); ok {
			return db, TierEntityMetadata, true
		}
	}
	return "", "", false
}

func (r *Router) ambientDatabase(ctx context.Context) DatabaseID {
	if r.ambient != nil {
		if name := r.ambient.Current(ctx).DatabaseName(); name != "" {
			return DatabaseID(name)
		}
	}
	return DefaultDatabase
}

func (r *Router) resolved(kind, subject, tier string, db DatabaseID) DatabaseID {
	if r.metrics != nil {
		r.metrics.observeResolution(kind, tier)
	}
	if r.logger != nil {
		r.logger.Debug("resolved database",
			zap.String("kind", kind),
			zap.String("subject", subject),
			zap.String("tier", tier),
			zap.String("database", string(db)))
	}
	return db
}
