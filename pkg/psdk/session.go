package psdk

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/yfschool/portal/pkg/psdk/credstore"
)

// errSessionEnded is returned by renew when a logout or a new login happened
// while the refresh exchange was outstanding.
var errSessionEnded = errors.New("session ended while the refresh was in flight")

// Session owns the credential store and the observable state and is the only
// place either is mutated. Every mutation holds mu across both, so observers
// never see a state that disagrees with the store.
//
// epoch increments on every login and logout. Work started under an older
// epoch (a refresh exchange, a profile fetch) is discarded instead of being
// written into a session that no longer exists.
type Session struct {
	mu     sync.Mutex
	store  *credstore.Store
	state  *State
	epoch  uint64
	logger *slog.Logger
}

func newSession(store *credstore.Store, logger *slog.Logger) *Session {
	s := &Session{
		store:  store,
		state:  newState(logger),
		logger: logger,
	}
	cred := store.Credential()
	if !cred.IsZero() {
		s.state.update(func(snap *Snapshot) {
			snap.Status = StatusAuthenticated
			snap.AccessToken = cred.AccessToken
		})
		s.state.pending = nil
	}
	return s
}

// current returns the credential together with the epoch it belongs to.
func (s *Session) current() (Credential, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Credential(), s.epoch
}

func (s *Session) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

func (s *Session) markAuthenticating() Snapshot {
	s.mu.Lock()
	prev := s.state.Snapshot()
	s.state.update(func(snap *Snapshot) { snap.Status = StatusAuthenticating })
	s.mu.Unlock()
	s.state.flush()
	return prev
}

// restore puts back the pre-login status after a failed login, unless
// something else already moved the session on.
func (s *Session) restore(prev Snapshot) {
	s.mu.Lock()
	s.state.update(func(snap *Snapshot) {
		if snap.Status == StatusAuthenticating {
			snap.Status = prev.Status
		}
	})
	s.mu.Unlock()
	s.state.flush()
}

// begin starts a fresh session from a login response.
func (s *Session) begin(ctx context.Context, cred Credential) (uint64, error) {
	s.mu.Lock()
	s.epoch++
	epoch := s.epoch
	err := s.store.Save(ctx, cred)
	s.state.update(func(snap *Snapshot) {
		*snap = Snapshot{Status: StatusAuthenticated, AccessToken: cred.AccessToken}
	})
	s.mu.Unlock()
	s.state.flush()
	return epoch, err
}

func (s *Session) markRefreshing(epoch uint64) {
	s.mu.Lock()
	if epoch == s.epoch {
		s.state.update(func(snap *Snapshot) {
			if snap.Status == StatusAuthenticated {
				snap.Status = StatusRefreshPending
			}
		})
	}
	s.mu.Unlock()
	s.state.flush()
}

// renew commits a refreshed credential. A rotated refresh token replaces the
// stored one; an empty one keeps it.
func (s *Session) renew(ctx context.Context, epoch uint64, issued Credential) (Credential, error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return Credential{}, errSessionEnded
	}
	if err := s.store.Rotate(ctx, issued.AccessToken, issued.RefreshToken); err != nil && s.logger != nil {
		s.logger.Warn("failed to persist refreshed credential", "error", err)
	}
	cred := s.store.Credential()
	s.state.update(func(snap *Snapshot) {
		snap.AccessToken = cred.AccessToken
		if snap.Status == StatusRefreshPending {
			snap.Status = StatusAuthenticated
		}
	})
	s.mu.Unlock()
	s.state.flush()
	return cred, nil
}

func (s *Session) setProfile(epoch uint64, p *Profile) bool {
	s.mu.Lock()
	ok := epoch == s.epoch && s.store.AccessToken() != ""
	if ok {
		s.state.update(func(snap *Snapshot) { snap.Profile = p })
	}
	s.mu.Unlock()
	s.state.flush()
	return ok
}

// end clears the store and resets the state to anonymous. It returns the
// credential that was cleared, which is zero if there was none.
func (s *Session) end(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	cred, err := s.endLocked(ctx)
	s.mu.Unlock()
	s.state.flush()
	return cred, err
}

// endIf ends the session only if it is still the one started at epoch and
// reports whether it did.
func (s *Session) endIf(ctx context.Context, epoch uint64) (bool, error) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false, nil
	}
	_, err := s.endLocked(ctx)
	s.mu.Unlock()
	s.state.flush()
	return true, err
}

func (s *Session) endLocked(ctx context.Context) (Credential, error) {
	s.epoch++
	cred := s.store.Credential()
	err := s.store.Clear(ctx)
	s.state.update(func(snap *Snapshot) { *snap = Snapshot{Status: StatusAnonymous} })
	return cred, err
}
