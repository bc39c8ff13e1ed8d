package scopedval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"

	"github.com/stratumhq/dbflow/pkg/apperrors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSetGetRoundtrip(t *testing.T) {
	s := New(Config[int]{})
	ctx := s.Bind(context.Background())

	require.NoError(t, s.Set(ctx, "x", 42))

	got, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestEmptyKeyRejected(t *testing.T) {
	s := New(Config[string]{})
	ctx := s.Bind(context.Background())

	err := s.Set(ctx, "", "v")
	assert.ErrorIs(t, err, apperrors.ErrEmptyKey)

	_, err = s.Get(ctx, "")
	assert.ErrorIs(t, err, apperrors.ErrEmptyKey)
}

func TestUnknownKeyYieldsZero(t *testing.T) {
	s := New(Config[int]{})
	ctx := s.Bind(context.Background())

	got, err := s.Get(ctx, "never-written")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestUnboundContext(t *testing.T) {
	s := New(Config[int]{})
	ctx := context.Background()

	// Reads start fresh.
	assert.Zero(t, s.Current(ctx))
	got, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Zero(t, got)

	// Writes are programming errors.
	assert.ErrorIs(t, s.SetCurrent(ctx, 1), apperrors.ErrNoFlow)
	assert.ErrorIs(t, s.Set(ctx, "x", 1), apperrors.ErrNoFlow)
	assert.ErrorIs(t, s.Clear(ctx), apperrors.ErrNoFlow)
	assert.False(t, s.Bound(ctx))
}

func TestDefaultSlot(t *testing.T) {
	s := New(Config[string]{})
	ctx := s.Bind(context.Background())

	assert.Empty(t, s.Current(ctx))
	require.NoError(t, s.SetCurrent(ctx, "reporting"))
	assert.Equal(t, "reporting", s.Current(ctx))
}

func TestCurrentOrInit(t *testing.T) {
	s := New(Config[*int]{})
	ctx := s.Bind(context.Background())

	calls := 0
	init := func() *int {
		calls++
		v := 7
		return &v
	}

	first := s.CurrentOrInit(ctx, init)
	second := s.CurrentOrInit(ctx, init)
	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

// Two flows writing the same key concurrently must never observe each
// other's value.
func TestFlowIsolation(t *testing.T) {
	s := New(Config[int]{})

	var g errgroup.Group
	for i := 0; i < 64; i++ {
		i := i
		g.Go(func() error {
			ctx := s.Bind(context.Background())
			if err := s.Set(ctx, "x", i); err != nil {
				return err
			}
			if err := s.SetCurrent(ctx, i); err != nil {
				return err
			}
			got, err := s.Get(ctx, "x")
			if err != nil {
				return err
			}
			if got != i {
				return fmt.Errorf("flow %d read %d for named slot", i, got)
			}
			if cur := s.Current(ctx); cur != i {
				return fmt.Errorf("flow %d read %d for default slot", i, cur)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestBranchSnapshot(t *testing.T) {
	s := New(Config[string]{})
	parent := s.Bind(context.Background())
	require.NoError(t, s.SetCurrent(parent, "reporting"))
	require.NoError(t, s.Set(parent, "region", "eu"))

	child := s.Branch(parent)

	// Child inherits the parent's values as of the branch.
	assert.Equal(t, "reporting", s.Current(child))
	got, err := s.Get(child, "region")
	require.NoError(t, err)
	assert.Equal(t, "eu", got)

	// Mutations after the branch are invisible across the boundary.
	require.NoError(t, s.SetCurrent(child, "archive"))
	require.NoError(t, s.Set(child, "region", "us"))
	assert.Equal(t, "reporting", s.Current(parent))

	require.NoError(t, s.SetCurrent(parent, "sales"))
	assert.Equal(t, "archive", s.Current(child))
}

func TestBranchShared(t *testing.T) {
	s := New(Config[string]{Propagation: PropagateShared})
	parent := s.Bind(context.Background())
	require.NoError(t, s.SetCurrent(parent, "reporting"))

	child := s.Branch(parent)
	require.NoError(t, s.SetCurrent(child, "archive"))

	// Shared propagation: both sides see the same state.
	assert.Equal(t, "archive", s.Current(parent))
}

func TestBranchUnboundStartsFresh(t *testing.T) {
	s := New(Config[int]{})
	child := s.Branch(context.Background())
	assert.True(t, s.Bound(child))
	assert.Zero(t, s.Current(child))
}

func TestBranchClonesWithCloneFunc(t *testing.T) {
	type rec struct{ name string }
	s := New(Config[*rec]{
		Clone: func(r *rec) *rec {
			if r == nil {
				return nil
			}
			cp := *r
			return &cp
		},
	})

	parent := s.Bind(context.Background())
	require.NoError(t, s.SetCurrent(parent, &rec{name: "sales"}))

	child := s.Branch(parent)
	s.Current(child).name = "archive"

	assert.Equal(t, "sales", s.Current(parent).name)
}

func TestClear(t *testing.T) {
	s := New(Config[int]{})
	ctx := s.Bind(context.Background())
	require.NoError(t, s.SetCurrent(ctx, 1))
	require.NoError(t, s.Set(ctx, "x", 2))

	require.NoError(t, s.Clear(ctx))
	assert.Zero(t, s.Current(ctx))
	got, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Zero(t, got)

	// Idempotent.
	require.NoError(t, s.Clear(ctx))
	assert.Zero(t, s.Current(ctx))
}

func TestClearIsPerFlow(t *testing.T) {
	s := New(Config[int]{})
	f1 := s.Bind(context.Background())
	f2 := s.Bind(context.Background())
	require.NoError(t, s.Set(f1, "x", 1))
	require.NoError(t, s.Set(f2, "x", 2))

	require.NoError(t, s.Clear(f1))

	got, err := s.Get(f2, "x")
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

// Slot-name registration is the one shared write path; hammer it from many
// flows at once.
func TestConcurrentRegistration(t *testing.T) {
	s := New(Config[int]{})

	var g errgroup.Group
	for i := 0; i < 32; i++ {
		i := i
		g.Go(func() error {
			ctx := s.Bind(context.Background())
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("slot-%d", j%10)
				if err := s.Set(ctx, key, i*1000+j); err != nil {
					return err
				}
				if _, err := s.Get(ctx, key); err != nil {
					return err
				}
			}
			return s.Clear(ctx)
		})
	}
	require.NoError(t, g.Wait())
}

func TestIndependentStoresDoNotCollide(t *testing.T) {
	a := New(Config[int]{})
	b := New(Config[int]{})

	ctx := b.Bind(a.Bind(context.Background()))
	require.NoError(t, a.SetCurrent(ctx, 1))
	require.NoError(t, b.SetCurrent(ctx, 2))

	assert.Equal(t, 1, a.Current(ctx))
	assert.Equal(t, 2, b.Current(ctx))
}
