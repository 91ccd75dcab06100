package psdk

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yfschool/portal/pkg/psdk/credstore"
)

// fakePortal is a scriptable stand-in for the portal API. Tokens are opaque
// strings; an access token is accepted when it is in valid.
type fakePortal struct {
	mu          sync.Mutex
	valid       map[string]bool
	refreshable map[string]bool
	issue       []string // access tokens handed out by refresh, in order
	rotateTo    string
	failRefresh int // status refresh answers with, 0 for success
	refreshGate <-chan struct{}
	gateOnly    string // when set, only this refresh token waits on refreshGate
	always401   map[string]bool
	hits        map[string]int
	seen        []string
	logouts     []string

	unauthorized  atomic.Int32
	unauthWant    int32
	unauthReached chan struct{}
	unauthOnce    sync.Once

	refreshCalls atomic.Int32
	refreshDone  atomic.Int32

	srv *httptest.Server
}

func newFakePortal(t *testing.T) *fakePortal {
	t.Helper()
	p := &fakePortal{
		valid:       map[string]bool{},
		refreshable: map[string]bool{},
		always401:   map[string]bool{},
		hits:        map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/login/", p.login)
	mux.HandleFunc("POST /api/token/refresh/", p.refresh)
	mux.HandleFunc("POST /api/logout/", p.logout)
	mux.HandleFunc("/api/", p.protected)
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePortal) baseURL() string {
	return p.srv.URL + "/api"
}

// waitUnauthorized returns a channel closed once n requests were answered 401.
func (p *fakePortal) waitUnauthorized(n int32) <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unauthWant = n
	p.unauthReached = make(chan struct{})
	return p.unauthReached
}

func (p *fakePortal) hitCount(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits[path]
}

func (p *fakePortal) seenTokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.seen...)
}

func (p *fakePortal) loggedOut() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.logouts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (p *fakePortal) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "malformed body"})
		return
	}
	if req.UserID != "s1001" || req.Password != "pw" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "No active account found with the given credentials"})
		return
	}
	p.mu.Lock()
	p.valid["A1"] = true
	p.refreshable["R1"] = true
	p.mu.Unlock()
	writeJSON(w, http.StatusOK, Credential{AccessToken: "A1", RefreshToken: "R1"})
}

func (p *fakePortal) refresh(w http.ResponseWriter, r *http.Request) {
	p.refreshCalls.Add(1)
	defer p.refreshDone.Add(1)

	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	p.mu.Lock()
	gate := p.refreshGate
	if p.gateOnly != "" && p.gateOnly != req.Refresh {
		gate = nil
	}
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failRefresh != 0 {
		writeJSON(w, p.failRefresh, map[string]string{"detail": "refresh failed"})
		return
	}
	if !p.refreshable[req.Refresh] {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Token is invalid or expired"})
		return
	}
	access := "A2"
	if len(p.issue) > 0 {
		access, p.issue = p.issue[0], p.issue[1:]
	}
	p.valid[access] = true
	resp := map[string]string{"access": access}
	if p.rotateTo != "" {
		delete(p.refreshable, req.Refresh)
		p.refreshable[p.rotateTo] = true
		resp["refresh"] = p.rotateTo
	}
	writeJSON(w, http.StatusOK, resp)
}

func (p *fakePortal) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	p.mu.Lock()
	p.logouts = append(p.logouts, req.Refresh)
	delete(p.refreshable, req.Refresh)
	p.mu.Unlock()
	w.WriteHeader(http.StatusResetContent)
}

func (p *fakePortal) protected(w http.ResponseWriter, r *http.Request) {
	tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	p.mu.Lock()
	p.hits[r.URL.Path]++
	p.seen = append(p.seen, tok)
	ok := p.valid[tok] && !p.always401[r.URL.Path]
	p.mu.Unlock()

	if !ok {
		n := p.unauthorized.Add(1)
		p.mu.Lock()
		if p.unauthReached != nil && n >= p.unauthWant {
			p.unauthOnce.Do(func() { close(p.unauthReached) })
		}
		p.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Given token not valid for any token type"})
		return
	}

	switch r.URL.Path {
	case "/api/user-info/":
		writeJSON(w, http.StatusOK, Profile{UserID: "s1001", Name: "Kim Minji", Role: RoleStudent, ClassName: "2-3"})
	case "/api/missing/":
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
	default:
		writeJSON(w, http.StatusOK, map[string]string{"path": r.URL.Path, "token": tok})
	}
}

// newTestClient builds a client against p whose store already holds cred.
func newTestClient(t *testing.T, p *fakePortal, cred Credential, opts ...func(*Config)) (*Client, *credstore.MemoryBackend) {
	t.Helper()
	ctx := context.Background()
	backend := credstore.NewMemoryBackend()
	if cred.AccessToken != "" {
		require.NoError(t, backend.Set(ctx, credstore.KeyAccessToken, cred.AccessToken))
	}
	if cred.RefreshToken != "" {
		require.NoError(t, backend.Set(ctx, credstore.KeyRefreshToken, cred.RefreshToken))
	}

	cfg := DefaultConfig()
	cfg.BaseURL = p.baseURL()
	cfg.RefreshTimeout = 5 * time.Second
	cfg.LogoutTimeout = time.Second
	for _, o := range opts {
		o(cfg)
	}

	c, err := New(ctx, cfg, WithBackend(backend), WithHTTPClient(p.srv.Client()))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, backend
}

func persisted(t *testing.T, b *credstore.MemoryBackend) Credential {
	t.Helper()
	ctx := context.Background()
	var cred Credential
	if v, err := b.Get(ctx, credstore.KeyAccessToken); err == nil {
		cred.AccessToken = v
	}
	if v, err := b.Get(ctx, credstore.KeyRefreshToken); err == nil {
		cred.RefreshToken = v
	}
	return cred
}
