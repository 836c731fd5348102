package discovery

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/scout/internal/network"
	scouterr "github.com/mrz1836/scout/pkg/errors"
)

func TestStore_CreateGet(t *testing.T) {
	t.Parallel()
	st := NewStore()

	require.NoError(t, st.Create(Session{DeviceState: "a", Status: StatusRunning, Total: 3, Failed: []string{}}))

	s, ok := st.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, StatusRunning, s.Status)
	assert.True(t, st.Exists("a"))
	assert.False(t, st.Exists("b"))

	_, ok = st.Get("b")
	assert.False(t, ok)
}

func TestStore_CreateTwice(t *testing.T) {
	t.Parallel()
	st := NewStore()

	require.NoError(t, st.Create(Session{DeviceState: "a"}))
	require.ErrorIs(t, st.Create(Session{DeviceState: "a"}), scouterr.ErrDiscoveryInProgress)
	require.NoError(t, st.Create(Session{DeviceState: "b"}), "other devices are independent")
}

func TestStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	st := NewStore()
	require.NoError(t, st.Create(Session{
		DeviceState: "a",
		Failed:      []string{"btc/normal"},
		Networks:    []network.Network{btcSegwit},
	}))

	s, _ := st.Get("a")
	s.Failed[0] = "mutated"
	s.Networks[0].Symbol = "mutated"
	s.Loaded = 99

	again, _ := st.Get("a")
	assert.Equal(t, []string{"btc/normal"}, again.Failed)
	assert.Equal(t, "btc", again.Networks[0].Symbol)
	assert.Zero(t, again.Loaded)
}

func TestStore_Update(t *testing.T) {
	t.Parallel()
	st := NewStore()
	require.NoError(t, st.Create(Session{DeviceState: "a", Total: 2}))

	s, ok := st.Update("a", func(s *Session) { s.Loaded++ })
	require.True(t, ok)
	assert.Equal(t, 1, s.Loaded)

	_, ok = st.Update("missing", func(*Session) { t.Fatal("must not be called") })
	assert.False(t, ok)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	t.Parallel()
	st := NewStore()
	require.NoError(t, st.Create(Session{DeviceState: "a", Total: 100}))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st.Update("a", func(s *Session) { s.Loaded++ })
		}()
	}
	wg.Wait()

	s, _ := st.Get("a")
	assert.Equal(t, 100, s.Loaded)
}

func TestStore_Remove(t *testing.T) {
	t.Parallel()
	st := NewStore()
	require.NoError(t, st.Create(Session{DeviceState: "a"}))

	assert.True(t, st.Remove("a"))
	assert.False(t, st.Remove("a"))
	assert.False(t, st.Exists("a"))
	require.NoError(t, st.Create(Session{DeviceState: "a"}), "removed sessions can be recreated")
}

func TestStore_Snapshot(t *testing.T) {
	t.Parallel()
	st := NewStore()
	require.NoError(t, st.Create(Session{DeviceState: "a", Status: StatusStalled, Total: 4, Loaded: 2, Failed: []string{"eth/normal"}}))

	snap, ok := st.Snapshot("a")
	require.True(t, ok)
	assert.Equal(t, Snapshot{Status: StatusStalled, Total: 4, Loaded: 2, FailedNetworks: []string{"eth/normal"}}, snap)

	_, ok = st.Snapshot("b")
	assert.False(t, ok)
}

func TestStore_OnChange(t *testing.T) {
	t.Parallel()
	st := NewStore()

	type change struct {
		loaded  int
		removed bool
	}
	var changes []change
	st.OnChange(func(s Session, removed bool) {
		// listeners may read the store
		_ = st.Exists(s.DeviceState)
		changes = append(changes, change{s.Loaded, removed})
	})

	require.NoError(t, st.Create(Session{DeviceState: "a"}))
	st.Update("a", func(s *Session) { s.Loaded = 1 })
	st.Remove("a")

	assert.Equal(t, []change{{0, false}, {1, false}, {1, true}}, changes)
}

func TestStore_OnChange_OrderedUnderContention(t *testing.T) {
	t.Parallel()

	type change struct {
		loaded  int
		removed bool
	}
	for _, tc := range []struct {
		name   string
		second func(st *Store)
		want   []change
	}{
		{
			name:   "update",
			second: func(st *Store) { st.Update("a", func(s *Session) { s.Loaded++ }) },
			want:   []change{{1, false}, {2, false}},
		},
		{
			name:   "remove",
			second: func(st *Store) { st.Remove("a") },
			want:   []change{{1, false}, {1, true}},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			st := NewStore()
			require.NoError(t, st.Create(Session{DeviceState: "a"}))

			var mu sync.Mutex
			var changes []change
			entered := make(chan struct{})
			st.OnChange(func(s Session, removed bool) {
				if s.Loaded == 1 && !removed {
					close(entered)
					// give the second writer time to run ahead
					time.Sleep(50 * time.Millisecond)
				}
				mu.Lock()
				defer mu.Unlock()
				changes = append(changes, change{s.Loaded, removed})
			})

			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				st.Update("a", func(s *Session) { s.Loaded++ })
			}()
			go func() {
				defer wg.Done()
				<-entered
				tc.second(st)
			}()
			wg.Wait()

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, tc.want, changes)
		})
	}
}

func TestStore_List(t *testing.T) {
	t.Parallel()
	st := NewStore()
	require.NoError(t, st.Create(Session{DeviceState: "b"}))
	require.NoError(t, st.Create(Session{DeviceState: "a"}))

	list := st.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].DeviceState)
	assert.Equal(t, "b", list[1].DeviceState)
	assert.Empty(t, NewStore().List())
}
