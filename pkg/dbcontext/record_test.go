package dbcontext

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestGetOrCreateMemoizes(t *testing.T) {
	rec := NewRecord()

	calls := 0
	factory := func() (*struct{ n int }, error) {
		calls++
		return &struct{ n int }{n: 1}, nil
	}

	first, err := GetOrCreate(rec, "schema", factory)
	require.NoError(t, err)
	second, err := GetOrCreate(rec, "schema", factory)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestGetOrCreateDistinctKeys(t *testing.T) {
	rec := NewRecord()

	a, err := GetOrCreate(rec, "a", func() (string, error) { return "va", nil })
	require.NoError(t, err)
	b, err := GetOrCreate(rec, "b", func() (string, error) { return "vb", nil })
	require.NoError(t, err)

	assert.Equal(t, "va", a)
	assert.Equal(t, "vb", b)
}

// Concurrent callers racing on one key must collapse to a single factory
// invocation.
func TestGetOrCreateConcurrent(t *testing.T) {
	rec := NewRecord()

	var calls atomic.Int32
	var g errgroup.Group
	for i := 0; i < 32; i++ {
		g.Go(func() error {
			v, err := GetOrCreate(rec, "conn", func() (int, error) {
				calls.Add(1)
				return 99, nil
			})
			if err != nil {
				return err
			}
			if v != 99 {
				return errors.New("unexpected cached value")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetOrCreateFactoryErrorNotCached(t *testing.T) {
	rec := NewRecord()

	boom := errors.New("boom")
	_, err := GetOrCreate(rec, "k", func() (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)

	// A later call retries the factory.
	v, err := GetOrCreate(rec, "k", func() (int, error) { return 5, nil })
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestRecordClearKeepsDatabaseName(t *testing.T) {
	rec := NewRecord()
	rec.SetDatabaseName("Sales")
	rec.SetConnectionActive(true)
	_, err := GetOrCreate(rec, "k", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	rec.Clear()

	assert.Equal(t, "Sales", rec.DatabaseName())
	assert.False(t, rec.ConnectionActive())

	calls := 0
	_, err = GetOrCreate(rec, "k", func() (int, error) { calls++; return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "cache should have been emptied")
}

func TestCloneIsIndependent(t *testing.T) {
	rec := NewRecord()
	rec.SetDatabaseName("Sales")
	_, err := GetOrCreate(rec, "k", func() (int, error) { return 1, nil })
	require.NoError(t, err)

	cp := rec.clone()
	assert.Equal(t, "Sales", cp.DatabaseName())

	// Cached entries carry over...
	v, err := GetOrCreate(cp, "k", func() (int, error) { return 2, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	// ...but later writes do not cross the copy boundary.
	cp.SetDatabaseName("Archive")
	_, err = GetOrCreate(cp, "k2", func() (int, error) { return 3, nil })
	require.NoError(t, err)

	assert.Equal(t, "Sales", rec.DatabaseName())
	calls := 0
	_, err = GetOrCreate(rec, "k2", func() (int, error) { calls++; return 4, nil })
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
