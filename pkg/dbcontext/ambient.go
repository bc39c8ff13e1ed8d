// Package dbcontext carries the ambient "current database" record for a
// flow. Code anywhere in a call chain can ask which database it is operating
// against without the caller threading that decision through every
// signature; routers and connection factories read the same record.
package dbcontext

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stratumhq/dbflow/pkg/apperrors"
	"github.com/stratumhq/dbflow/pkg/scopedval"
)

// Ambient manages per-flow database context records. Construct one per
// process (or per test) and share it; the records it hands out are isolated
// per flow.
type Ambient struct {
	store  *scopedval.Store[*Record]
	logger *zap.Logger
}

type flowIDKey struct{ _ byte }

var ambientFlowIDKey = &flowIDKey{}

// New creates an Ambient with snapshot propagation: child tasks branched
// from a flow get a copy of the record, so their mutations stay local.
// Pass nil logger to disable debug logging.
func New(logger *zap.Logger) *Ambient {
	return &Ambient{
		store: scopedval.New(scopedval.Config[*Record]{
			Propagation: scopedval.PropagateSnapshot,
			Clone: func(r *Record) *Record {
				if r == nil {
					return nil
				}
				return r.clone()
			},
		}),
		logger: logger,
	}
}

// Bind starts a new flow with no record yet; the first Current read creates
// the default record. Each flow is tagged with an ID for log correlation.
func (a *Ambient) Bind(ctx context.Context) context.Context {
	flowID := uuid.New()
	ctx = context.WithValue(a.store.Bind(ctx), ambientFlowIDKey, flowID)
	if a.logger != nil {
		a.logger.Debug("bound ambient database flow", zap.String("flow_id", flowID.String()))
	}
	return ctx
}

// Branch derives the context for a child task: the child sees the parent's
// record as of now and mutates its own copy afterwards.
func (a *Ambient) Branch(ctx context.Context) context.Context {
	return a.store.Branch(ctx)
}

// FlowID returns the flow identifier assigned by Bind, or uuid.Nil when the
// context was never bound.
func FlowID(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ambientFlowIDKey).(uuid.UUID)
	return id
}

// Current returns the flow's database context record, lazily creating the
// default record on first read. Repeated reads within one flow return the
// same instance until SetCurrent replaces it. On an unbound context a
// detached default record is returned: usable, but not retained.
func (a *Ambient) Current(ctx context.Context) *Record {
	return a.store.CurrentOrInit(ctx, NewRecord)
}

// SetCurrent replaces the flow's record.
func (a *Ambient) SetCurrent(ctx context.Context, rec *Record) error {
	return a.store.SetCurrent(ctx, rec)
}

// SetDatabase retargets the flow's current record, creating it if needed.
func (a *Ambient) SetDatabase(ctx context.Context, name string) error {
	if !a.store.Bound(ctx) {
		return apperrors.ErrNoFlow
	}
	a.Current(ctx).SetDatabaseName(name)
	if a.logger != nil {
		a.logger.Debug("ambient database changed",
			zap.String("flow_id", FlowID(ctx).String()),
			zap.String("database", name))
	}
	return nil
}

// Clear drops the flow's record entirely; the next Current read yields a
// fresh default record targeting DefaultDatabaseName. Compare Record.Clear,
// which empties the cache but keeps the database name.
func (a *Ambient) Clear(ctx context.Context) error {
	return a.store.Clear(ctx)
}
