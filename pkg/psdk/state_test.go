package psdk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/yfschool/portal/pkg/plog"
)

func TestState_DeliversInMutationOrder(t *testing.T) {
	st := newState(plog.Discard().Logger)

	var got []Status
	st.Subscribe(func(s Snapshot) { got = append(got, s.Status) })

	for _, status := range []Status{StatusAuthenticating, StatusAuthenticated, StatusRefreshPending, StatusAuthenticated} {
		st.update(func(s *Snapshot) { s.Status = status })
	}
	st.flush()

	assert.Equal(t, []Status{StatusAuthenticating, StatusAuthenticated, StatusRefreshPending, StatusAuthenticated}, got)
}

func TestState_UnchangedSnapshotIsNotDelivered(t *testing.T) {
	st := newState(plog.Discard().Logger)
	calls := 0
	st.Subscribe(func(Snapshot) { calls++ })

	assert.False(t, st.update(func(s *Snapshot) { s.Status = StatusAnonymous }))
	st.flush()
	assert.Zero(t, calls)
}

func TestState_ReentrantUpdateIsDeliveredAfterCurrent(t *testing.T) {
	st := newState(plog.Discard().Logger)

	var got []Status
	st.Subscribe(func(s Snapshot) {
		got = append(got, s.Status)
		if s.Status == StatusAuthenticated {
			st.update(func(s *Snapshot) { s.Status = StatusAnonymous })
			st.flush()
		}
	})
	st.Subscribe(func(s Snapshot) { got = append(got, s.Status+10) })

	st.update(func(s *Snapshot) { s.Status = StatusAuthenticated })
	st.flush()

	assert.Equal(t, []Status{StatusAuthenticated, StatusAuthenticated + 10, StatusAnonymous, StatusAnonymous + 10}, got)
}

func TestState_PanickingObserverDoesNotStopOthers(t *testing.T) {
	st := newState(plog.Discard().Logger)
	st.Subscribe(func(Snapshot) { panic("boom") })

	delivered := false
	st.Subscribe(func(Snapshot) { delivered = true })

	st.update(func(s *Snapshot) { s.Status = StatusAuthenticated })
	st.flush()
	assert.True(t, delivered)
}

func TestState_CancelStopsDelivery(t *testing.T) {
	st := newState(plog.Discard().Logger)
	var mu sync.Mutex
	calls := 0
	cancel := st.Subscribe(func(Snapshot) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	st.update(func(s *Snapshot) { s.Status = StatusAuthenticating })
	st.flush()
	cancel()
	cancel()
	st.update(func(s *Snapshot) { s.Status = StatusAnonymous })
	st.flush()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}
