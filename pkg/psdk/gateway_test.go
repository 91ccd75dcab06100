package psdk

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yfschool/portal/pkg/psdk/perr"
	"golang.org/x/sync/errgroup"
)

const fanOut = 8

func TestGateway_ConcurrentUnauthorizedShareOneRefresh(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R1"] = true
	p.refreshGate = p.waitUnauthorized(fanOut)

	c, backend := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	var g errgroup.Group
	bodies := make([]map[string]string, fanOut)
	for i := 0; i < fanOut; i++ {
		g.Go(func() error {
			resp, err := c.Gateway().Get(context.Background(), "grades/")
			if err != nil {
				return err
			}
			return resp.Decode(&bodies[i])
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, 1, p.refreshCalls.Load())
	assert.EqualValues(t, 1, c.refresher.Exchanges())
	for _, b := range bodies {
		assert.Equal(t, "A2", b["token"])
	}
	assert.Equal(t, 2*fanOut, p.hitCount("/api/grades/"))
	assert.Equal(t, Credential{AccessToken: "A2", RefreshToken: "R1"}, persisted(t, backend))
	assert.Equal(t, StatusAuthenticated, c.Snapshot().Status)
}

func TestGateway_FailedRefreshExpiresEveryWaiter(t *testing.T) {
	p := newFakePortal(t)
	p.refreshGate = p.waitUnauthorized(fanOut)
	// R1 is unknown to the server, so the exchange is rejected.

	c, backend := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	errs := make([]error, fanOut)
	var wg sync.WaitGroup
	for i := 0; i < fanOut; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = c.Gateway().Get(context.Background(), "grades/")
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		assert.True(t, perr.IsCode(err, perr.CodeSessionExpired), "got %v", err)
	}
	assert.EqualValues(t, 1, p.refreshCalls.Load())
	assert.True(t, persisted(t, backend).IsZero())
	assert.Equal(t, StatusAnonymous, c.Snapshot().Status)
	assert.Empty(t, c.Snapshot().AccessToken)
}

func TestGateway_RefreshRejectionKeepsCause(t *testing.T) {
	p := newFakePortal(t)
	c, _ := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	_, err := c.Gateway().Get(context.Background(), "grades/")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.CodeSessionExpired))
	assert.True(t, perr.IsCode(err, perr.CodeRefreshRejected))
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode(err))
}

func TestGateway_RefreshServerErrorIsRefreshFailed(t *testing.T) {
	p := newFakePortal(t)
	p.failRefresh = http.StatusInternalServerError
	c, _ := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	_, err := c.Gateway().Get(context.Background(), "grades/")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.CodeRefreshFailed), "got %v", err)
	assert.Equal(t, StatusAnonymous, c.Snapshot().Status)
}

func TestGateway_NoThirdAttempt(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R1"] = true
	p.always401["/api/grades/"] = true

	c, backend := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	_, err := c.Gateway().Get(context.Background(), "grades/")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.CodeSessionExpired))
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode(err))

	assert.Equal(t, 2, p.hitCount("/api/grades/"))
	assert.EqualValues(t, 1, p.refreshCalls.Load())
	assert.Equal(t, StatusAnonymous, c.Snapshot().Status)
	assert.True(t, persisted(t, backend).IsZero())
}

func TestGateway_LogoutDuringRefresh(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R1"] = true
	release := make(chan struct{})
	p.refreshGate = release
	allRejected := p.waitUnauthorized(fanOut)

	c, backend := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	errs := make(chan error, fanOut)
	for i := 0; i < fanOut; i++ {
		go func() {
			_, err := c.Gateway().Get(context.Background(), "grades/")
			errs <- err
		}()
	}

	<-allRejected
	require.Eventually(t, func() bool { return p.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, StatusRefreshPending, c.Snapshot().Status)

	require.NoError(t, c.Logout(context.Background()))

	for i := 0; i < fanOut; i++ {
		select {
		case err := <-errs:
			require.Error(t, err)
			assert.True(t, perr.IsCode(err, perr.CodeSessionExpired), "got %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("queued request was not released by logout")
		}
	}

	close(release)
	require.Eventually(t, func() bool { return p.refreshDone.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	// Give the abandoned exchange time to try to commit.
	time.Sleep(50 * time.Millisecond)

	assert.True(t, persisted(t, backend).IsZero())
	assert.Equal(t, StatusAnonymous, c.Snapshot().Status)
	assert.Empty(t, c.Snapshot().AccessToken)
	assert.Equal(t, []string{"R1"}, p.loggedOut())
}

func TestGateway_RefreshRetriesWithNewAccessToken(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R1"] = true
	c, backend := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	resp, err := c.Gateway().Get(context.Background(), "profile/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, []string{"A1", "A2"}, p.seenTokens())
	assert.Equal(t, Credential{AccessToken: "A2", RefreshToken: "R1"}, persisted(t, backend))
	assert.Equal(t, Credential{AccessToken: "A2", RefreshToken: "R1"}, c.store.Credential())
}

func TestGateway_RotatedRefreshTokenIsStored(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R1"] = true
	p.rotateTo = "R2"
	c, backend := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	_, err := c.Gateway().Get(context.Background(), "profile/")
	require.NoError(t, err)
	assert.Equal(t, Credential{AccessToken: "A2", RefreshToken: "R2"}, persisted(t, backend))
}

func TestGateway_RevokedRefreshFailsLocallyAfterwards(t *testing.T) {
	p := newFakePortal(t)
	c, _ := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	_, err := c.Gateway().Get(context.Background(), "grades/")
	require.Error(t, err)
	require.Equal(t, StatusAnonymous, c.Snapshot().Status)

	hits := p.hitCount("/api/grades/")
	for i := 0; i < 3; i++ {
		_, err := c.Gateway().Get(context.Background(), "grades/")
		require.Error(t, err)
		assert.True(t, perr.IsCode(err, perr.CodeSessionExpired))
	}
	assert.Equal(t, hits, p.hitCount("/api/grades/"))
	assert.EqualValues(t, 1, p.refreshCalls.Load())

	_, err = c.Login(context.Background(), "s1001", "pw")
	require.NoError(t, err)
	_, err = c.Gateway().Get(context.Background(), "grades/")
	require.NoError(t, err)
}

func TestGateway_UnauthenticatedRequestIsNotRetried(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R1"] = true
	c, _ := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	_, err := c.Gateway().Get(context.Background(), "grades/", WithAccessToken("other"))
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.CodeHTTP))
	assert.False(t, perr.IsCode(err, perr.CodeSessionExpired))
	assert.EqualValues(t, 0, p.refreshCalls.Load())
	assert.Equal(t, StatusAuthenticated, c.Snapshot().Status)
}

func TestGateway_HTTPErrorPassThrough(t *testing.T) {
	p := newFakePortal(t)
	p.valid["A1"] = true
	c, _ := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	_, err := c.Gateway().Get(context.Background(), "missing/")
	require.Error(t, err)
	assert.True(t, perr.IsCode(err, perr.CodeHTTP))

	var he *perr.HTTPError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusNotFound, he.Status)
	assert.Equal(t, "Not found.", he.Detail)
	assert.EqualValues(t, 0, p.refreshCalls.Load())
}

func TestGateway_QueryAndBody(t *testing.T) {
	p := newFakePortal(t)
	p.valid["A1"] = true
	c, _ := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	resp, err := c.Gateway().Get(context.Background(), "/attendance/", WithQuery(url.Values{"date": {"2024-03-04"}}))
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "/api/attendance/", body["path"])

	_, err = c.Gateway().Put(context.Background(), "profile/", map[string]string{"name": "Kim"})
	require.NoError(t, err)
}

func TestGateway_InvalidRequests(t *testing.T) {
	p := newFakePortal(t)
	c, _ := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})
	ctx := context.Background()

	_, err := c.Gateway().Do(ctx, http.MethodPatch, "grades/", nil)
	assert.True(t, perr.IsCode(err, perr.CodeInvalidRequest))

	_, err = c.Gateway().Get(ctx, "https://elsewhere.example.com/steal")
	assert.True(t, perr.IsCode(err, perr.CodeInvalidRequest))

	_, err = c.Gateway().Post(ctx, "grades/", map[string]any{"bad": make(chan int)})
	assert.True(t, perr.IsCode(err, perr.CodeInvalidRequest))

	assert.Zero(t, p.hitCount("/api/grades/"))
}

func TestGateway_ProactiveRefreshWithinSkew(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R1"] = true

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "s1001",
		"exp": time.Now().Add(10 * time.Second).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	c, _ := newTestClient(t, p, Credential{AccessToken: expired, RefreshToken: "R1"}, func(cfg *Config) {
		cfg.RefreshSkew = time.Minute
	})

	_, err = c.Gateway().Get(context.Background(), "grades/")
	require.NoError(t, err)
	assert.Equal(t, []string{"A2"}, p.seenTokens())
	assert.EqualValues(t, 1, p.refreshCalls.Load())
}

func TestGateway_OpaqueTokenIsNotRefreshedProactively(t *testing.T) {
	p := newFakePortal(t)
	p.valid["A1"] = true
	c, _ := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"}, func(cfg *Config) {
		cfg.RefreshSkew = time.Hour
	})

	_, err := c.Gateway().Get(context.Background(), "grades/")
	require.NoError(t, err)
	assert.EqualValues(t, 0, p.refreshCalls.Load())
}

func TestGateway_CancelledWaiterDoesNotCancelExchange(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R1"] = true
	release := make(chan struct{})
	p.refreshGate = release
	c, backend := newTestClient(t, p, Credential{AccessToken: "A1", RefreshToken: "R1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Gateway().Get(ctx, "grades/")
		done <- err
	}()

	require.Eventually(t, func() bool { return p.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	require.Eventually(t, func() bool {
		return persisted(t, backend).AccessToken == "A2"
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StatusAuthenticated, c.Snapshot().Status)
}

func TestGateway_ReloginDuringRefreshStartsFreshExchange(t *testing.T) {
	p := newFakePortal(t)
	p.refreshable["R0"] = true
	release := make(chan struct{})
	var releaseOnce sync.Once
	unblock := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(unblock)
	p.refreshGate = release
	p.gateOnly = "R0"

	c, backend := newTestClient(t, p, Credential{AccessToken: "A0", RefreshToken: "R0"})
	ctx := context.Background()

	oldErr := make(chan error, 1)
	go func() {
		_, err := c.Gateway().Get(ctx, "grades/")
		oldErr <- err
	}()
	require.Eventually(t, func() bool { return p.refreshCalls.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := c.Login(ctx, "s1001", "pw")
	require.NoError(t, err)

	select {
	case err := <-oldErr:
		assert.True(t, perr.IsCode(err, perr.CodeSessionExpired), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("request of the previous session was not released by the new login")
	}

	// The new session's access token goes bad while R0 is still being exchanged.
	p.mu.Lock()
	delete(p.valid, "A1")
	p.mu.Unlock()

	reqCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	resp, err := c.Gateway().Get(reqCtx, "courses/")
	require.NoError(t, err)
	var body map[string]string
	require.NoError(t, resp.Decode(&body))
	assert.Equal(t, "A2", body["token"])
	assert.EqualValues(t, 2, p.refreshCalls.Load())
	assert.Equal(t, Credential{AccessToken: "A2", RefreshToken: "R1"}, persisted(t, backend))

	unblock()
	require.Eventually(t, func() bool { return p.refreshDone.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	// Give the abandoned exchange time to try to commit.
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, Credential{AccessToken: "A2", RefreshToken: "R1"}, persisted(t, backend))
	assert.Equal(t, StatusAuthenticated, c.Snapshot().Status)
}
