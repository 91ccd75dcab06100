package psdk

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yfschool/portal/pkg/psdk/perr"
)

// DefaultRefreshTimeout bounds a single exchange against token/refresh/.
const DefaultRefreshTimeout = 10 * time.Second

// exchangeFunc trades a refresh token for a new credential. The returned
// RefreshToken is empty unless the server rotated it.
type exchangeFunc func(ctx context.Context, refreshToken string) (Credential, error)

// expireFunc is the logout cascade for the session started at epoch.
type expireFunc func(ctx context.Context, epoch uint64, cause error)

// flight is one refresh exchange and everyone waiting on it.
type flight struct {
	done  chan struct{}
	once  sync.Once
	epoch uint64
	cred  Credential
	err   error
}

func (f *flight) settle(cred Credential, err error) {
	f.once.Do(func() {
		f.cred, f.err = cred, err
		close(f.done)
	})
}

// Coordinator renews the access credential with at most one exchange in
// flight per session. Callers that arrive while an exchange is running wait for it and
// share its outcome.
type Coordinator struct {
	mu       sync.Mutex
	inflight *flight

	session  *Session
	exchange exchangeFunc
	expire   expireFunc
	timeout  time.Duration
	logger   *slog.Logger

	exchanges atomic.Int64
}

func newCoordinator(session *Session, exchange exchangeFunc, expire expireFunc, timeout time.Duration, logger *slog.Logger) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	return &Coordinator{
		session:  session,
		exchange: exchange,
		expire:   expire,
		timeout:  timeout,
		logger:   logger,
	}
}

// Exchanges returns how many refresh exchanges have been sent.
func (c *Coordinator) Exchanges() int64 {
	return c.exchanges.Load()
}

// Refresh returns a valid access credential. stale is the access token the
// caller's failed request carried; if the store already holds a different
// one, somebody else renewed it and no exchange is needed.
//
// Cancelling ctx stops this caller from waiting; the exchange itself carries
// on for the other waiters, bounded by the coordinator's timeout.
func (c *Coordinator) Refresh(ctx context.Context, stale string) (Credential, error) {
	c.mu.Lock()
	if f := c.inflight; f != nil {
		c.mu.Unlock()
		return wait(ctx, f)
	}

	cred, epoch := c.session.current()
	if cred.AccessToken != "" && cred.AccessToken != stale {
		c.mu.Unlock()
		return cred, nil
	}
	if cred.RefreshToken == "" {
		c.mu.Unlock()
		err := perr.Newf(perr.CodeNoRefreshToken, "no refresh token available")
		c.expire(ctx, epoch, err)
		return Credential{}, err
	}

	f := &flight{done: make(chan struct{}), epoch: epoch}
	c.inflight = f
	c.mu.Unlock()

	c.session.markRefreshing(epoch)
	go c.run(context.WithoutCancel(ctx), f, cred.RefreshToken)
	return wait(ctx, f)
}

func wait(ctx context.Context, f *flight) (Credential, error) {
	select {
	case <-f.done:
		return f.cred, f.err
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	}
}

func (c *Coordinator) run(ctx context.Context, f *flight, refreshToken string) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.exchanges.Add(1)
	started := time.Now()
	issued, err := c.exchange(ctx, refreshToken)
	if err != nil {
		err = classifyRefreshError(err)
		c.logger.Warn("token refresh failed", "error", err, "elapsed", time.Since(started))
		// Clear the session before releasing the waiters so that none of
		// them can observe the old credential after being told it is gone.
		c.expire(ctx, f.epoch, err)
		c.finish(f, Credential{}, err)
		return
	}

	cred, err := c.session.renew(ctx, f.epoch, issued)
	if err != nil {
		c.logger.Info("discarding refreshed credential", "reason", err)
		c.finish(f, Credential{}, perr.New(perr.CodeSessionExpired, err))
		return
	}
	c.logger.Debug("access token refreshed", "elapsed", time.Since(started), "rotated", issued.RefreshToken != "")
	c.finish(f, cred, nil)
}

// finish detaches f and releases its waiters. The session commit, if any,
// has already happened, so every waiter sees the new credential in the store.
func (c *Coordinator) finish(f *flight, cred Credential, err error) {
	c.mu.Lock()
	if c.inflight == f {
		c.inflight = nil
	}
	c.mu.Unlock()
	f.settle(cred, err)
}

// abort releases the waiters of the in-flight exchange with err right away.
// The exchange's eventual result is dropped: the caller has already moved
// the session to a new epoch, so renew refuses it.
//
// The abandoned request is not cancelled and may still be on the wire, for at
// most the coordinator's timeout, when the next session starts its own
// exchange. Only one exchange per session is ever in flight.
func (c *Coordinator) abort(err error) {
	c.mu.Lock()
	f := c.inflight
	c.inflight = nil
	c.mu.Unlock()
	if f != nil {
		f.settle(Credential{}, err)
	}
}

func classifyRefreshError(err error) error {
	var pe *perr.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case perr.CodeRefreshRejected, perr.CodeRefreshNetwork, perr.CodeRefreshFailed, perr.CodeNoRefreshToken:
			return err
		case perr.CodeTransport:
			return perr.New(perr.CodeRefreshNetwork, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return perr.New(perr.CodeRefreshNetwork, err)
	}
	switch perr.StatusCode(err) {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return perr.New(perr.CodeRefreshRejected, err)
	}
	return perr.New(perr.CodeRefreshFailed, err)
}
