package drainhub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistry(t *testing.T) {
	t.Parallel()

	got := NewRegistry()
	require.NotNil(t, got)
	require.True(t, got.Accepting())
	require.Equal(t, 0, got.Count())
	require.NotNil(t, got.sessions)
	require.NotNil(t, got.drained)
	require.NotNil(t, got.log)
}

func TestRegistry_Register(t *testing.T) {
	t.Parallel()

	t.Run("admits_sessions_while_accepting", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(newStubSession("a")))
		require.NoError(t, r.Register(newStubSession("b")))
		require.Equal(t, 2, r.Count())
	})

	t.Run("fails_with_registry_closed_once_draining", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(newStubSession("a")))

		r.BeginDraining()

		err := r.Register(newStubSession("b"))
		require.ErrorIs(t, err, ErrRegistryClosed)
		require.Equal(t, 1, r.Count())
	})
}

func TestRegistry_Unregister(t *testing.T) {
	t.Parallel()

	t.Run("removes_registered_session", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(newStubSession("a")))

		r.Unregister("a")
		require.Equal(t, 0, r.Count())
	})

	t.Run("absent_id_is_a_no-op", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(newStubSession("a")))

		r.Unregister("missing")
		require.Equal(t, 1, r.Count())

		// Double removal never drives the count negative.
		r.Unregister("a")
		r.Unregister("a")
		require.Equal(t, 0, r.Count())
	})
}

func TestRegistry_Snapshot(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(newStubSession("a")))
	require.NoError(t, r.Register(newStubSession("b")))

	snap := r.Snapshot()
	require.Len(t, snap, 2)

	// The snapshot is immutable with respect to later registry mutations.
	r.Unregister("a")
	r.Unregister("b")
	require.Len(t, snap, 2)
	require.Equal(t, 0, r.Count())
}

func TestRegistry_BeginDraining(t *testing.T) {
	t.Parallel()

	t.Run("stops_admission_and_snapshots_live_set", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(newStubSession("a")))
		require.NoError(t, r.Register(newStubSession("b")))

		snap := r.BeginDraining()
		require.Len(t, snap, 2)
		require.False(t, r.Accepting())
	})

	t.Run("second_call_is_a_no-op_returning_the_same_snapshot", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(newStubSession("a")))

		first := r.BeginDraining()
		r.Unregister("a")
		second := r.BeginDraining()

		require.Len(t, first, 1)
		require.Equal(t, first, second)
		require.False(t, r.Accepting())
	})
}

func TestRegistry_Drained(t *testing.T) {
	t.Parallel()

	t.Run("closed_when_last_session_leaves_while_draining", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(newStubSession("a")))
		r.BeginDraining()

		select {
		case <-r.Drained():
			t.Fatal("drained must not be closed while sessions remain")
		default:
		}

		r.Unregister("a")

		select {
		case <-r.Drained():
		default:
			t.Fatal("drained must be closed once the live set empties")
		}
	})

	t.Run("closed_immediately_when_draining_an_empty_registry", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		r.BeginDraining()

		select {
		case <-r.Drained():
		default:
			t.Fatal("drained must be closed when draining starts with no sessions")
		}
	})

	t.Run("not_closed_by_disconnects_before_draining", func(t *testing.T) {
		t.Parallel()

		r := NewRegistry()
		require.NoError(t, r.Register(newStubSession("a")))
		r.Unregister("a")

		select {
		case <-r.Drained():
			t.Fatal("drained must stay open until draining begins")
		default:
		}
	})
}

func TestRegistry_ConcurrentMutations(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	const n = 64
	wg := sync.WaitGroup{}
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := newStubSession(string(rune('a' + i%26)))
			if err := r.Register(s); err == nil {
				r.Unregister(s.ID())
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 0, r.Count())
}
