package psdk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/yfschool/portal/pkg/kv"
	"github.com/yfschool/portal/pkg/pauth"
	"github.com/yfschool/portal/pkg/plog"
	"github.com/yfschool/portal/pkg/psdk/credstore"
	"github.com/yfschool/portal/pkg/psdk/perr"
)

// DefaultLogoutTimeout bounds the best-effort server-side logout.
const DefaultLogoutTimeout = 5 * time.Second

// Client is the entry point of the SDK. It owns the credential store and the
// session, and exposes the gateway every portal API call goes through.
type Client struct {
	cfg       *Config
	store     *credstore.Store
	session   *Session
	refresher *Coordinator
	gateway   *Gateway
	logger    *slog.Logger
	closer    io.Closer
}

type clientOptions struct {
	backend    credstore.Backend
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

type Option func(*clientOptions)

// WithBackend persists credentials in b instead of the backend named by
// Config.Store.
func WithBackend(b credstore.Backend) Option {
	return func(o *clientOptions) { o.backend = b }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// New builds a client for cfg. A credential persisted by an earlier process
// is picked up and the session starts out authenticated; call FetchProfile to
// load the profile for it.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := clientOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = plog.Discard().Logger
	}
	logger := o.logger.With("component", "psdk")

	base, err := url.Parse(NormalizeBaseURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if !base.IsAbs() {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	backend, closer := o.backend, io.Closer(nil)
	if backend == nil {
		backend, closer, err = openBackend(ctx, cfg)
		if err != nil {
			return nil, err
		}
	}

	store, err := credstore.Open(ctx, backend)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return nil, fmt.Errorf("opening credential store: %w", err)
	}

	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.RequestTimeout}
	}

	c := &Client{
		cfg:    cfg,
		store:  store,
		logger: logger,
		closer: closer,
	}
	c.session = newSession(store, logger)
	c.refresher = newCoordinator(c.session, c.exchange, c.expire, cfg.RefreshTimeout, logger)
	c.gateway = &Gateway{
		baseURL:   base,
		http:      hc,
		session:   c.session,
		refresher: c.refresher,
		expire:    c.expire,
		skew:      cfg.RefreshSkew,
		now:       o.now,
		logger:    logger,
	}
	return c, nil
}

func openBackend(ctx context.Context, cfg *Config) (credstore.Backend, io.Closer, error) {
	switch cfg.Store {
	case StoreKeyring:
		return credstore.NewKeyringBackend(cfg.BaseURL), nil, nil
	case StoreValkey:
		kvs, err := kv.NewValkeyStore(ctx, cfg.Valkey.ValkeyConfig)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to valkey: %w", err)
		}
		return credstore.NewKVBackend(kvs, cfg.Valkey.Prefix, cfg.Valkey.TTL), kvs, nil
	default:
		return credstore.NewMemoryBackend(), nil, nil
	}
}

// Close releases the credential backend. The stored credential is kept.
func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}

func (c *Client) Gateway() *Gateway {
	return c.gateway
}

func (c *Client) Snapshot() Snapshot {
	return c.session.state.Snapshot()
}

// Subscribe calls fn with every new snapshot until the returned function is
// called.
func (c *Client) Subscribe(fn func(Snapshot)) (cancel func()) {
	return c.session.state.Subscribe(fn)
}

// Login exchanges user credentials for a token pair and starts a new session.
// A rejected login leaves any existing session untouched.
func (c *Client) Login(ctx context.Context, userID, password string) (Snapshot, error) {
	if userID == "" || password == "" {
		return c.Snapshot(), perr.Newf(perr.CodeInvalidRequest, "user id and password are required")
	}

	prev := c.session.markAuthenticating()
	resp, err := c.gateway.Post(ctx, ResourceLogin, loginRequest{UserID: userID, Password: password}, WithoutAuth())
	if err != nil {
		c.session.restore(prev)
		switch perr.StatusCode(err) {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
			return c.Snapshot(), perr.New(perr.CodeInvalidCredentials, err)
		}
		return c.Snapshot(), err
	}

	var cred Credential
	if err := resp.Decode(&cred); err != nil {
		c.session.restore(prev)
		return c.Snapshot(), perr.New(perr.CodeUnknown, err)
	}
	if cred.AccessToken == "" {
		c.session.restore(prev)
		return c.Snapshot(), perr.Newf(perr.CodeUnknown, "login response carried no access token")
	}

	epoch, err := c.session.begin(ctx, cred)
	c.refresher.abort(perr.Newf(perr.CodeSessionExpired, "replaced by a new login"))
	if err != nil {
		c.logger.Warn("failed to persist credential", "error", err)
	}
	c.logger.Info("logged in", "user_id", userID)

	if _, err := c.fetchProfile(ctx, epoch); err != nil {
		if perr.IsCode(err, perr.CodeSessionExpired) {
			return c.Snapshot(), err
		}
		c.logger.Warn("could not load profile", "error", err)
	}
	return c.Snapshot(), nil
}

// FetchProfile loads the profile of the current session into the state.
func (c *Client) FetchProfile(ctx context.Context) (*Profile, error) {
	return c.fetchProfile(ctx, c.session.Epoch())
}

func (c *Client) fetchProfile(ctx context.Context, epoch uint64) (*Profile, error) {
	resp, err := c.gateway.Get(ctx, ResourceUserInfo)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := resp.Decode(&p); err != nil {
		return nil, perr.New(perr.CodeUnknown, err)
	}
	if !c.session.setProfile(epoch, &p) {
		return nil, perr.Newf(perr.CodeSessionExpired, "session ended before the profile arrived")
	}
	return &p, nil
}

// Claims decodes the current access token without verifying it. Opaque
// tokens yield an error.
func (c *Client) Claims() (*pauth.UserClaims, error) {
	tok := c.store.AccessToken()
	if tok == "" {
		return nil, perr.Newf(perr.CodeSessionExpired, "not logged in")
	}
	return pauth.FromToken(tok)
}

// Logout ends the session. Local state is cleared first and any refresh in
// flight is abandoned; the server is then asked to revoke the refresh token.
// Failure to reach the server is logged and not returned.
func (c *Client) Logout(ctx context.Context) error {
	cred, err := c.session.end(ctx)
	c.refresher.abort(perr.Newf(perr.CodeSessionExpired, "logged out"))
	if err != nil {
		c.logger.Warn("failed to clear stored credential", "error", err)
		err = fmt.Errorf("clearing stored credential: %w", err)
	}
	if cred.IsZero() {
		return err
	}
	c.logger.Info("logged out")

	if cred.RefreshToken != "" {
		c.revoke(ctx, cred)
	}
	return err
}

func (c *Client) revoke(ctx context.Context, cred Credential) {
	timeout := c.cfg.LogoutTimeout
	if timeout <= 0 {
		timeout = DefaultLogoutTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	_, err := c.gateway.Post(ctx, ResourceLogout, refreshRequest{Refresh: cred.RefreshToken}, WithAccessToken(cred.AccessToken))
	if err != nil {
		c.logger.Warn("server-side logout failed", "error", err)
	}
}

// expire is the logout cascade triggered by an unrecoverable credential
// failure. It only ends the session that was current at epoch.
func (c *Client) expire(ctx context.Context, epoch uint64, cause error) {
	ended, err := c.session.endIf(context.WithoutCancel(ctx), epoch)
	if !ended {
		return
	}
	c.refresher.abort(cause)
	if err != nil {
		c.logger.Warn("failed to clear stored credential", "error", err)
	}
	c.logger.Warn("session expired", "reason", cause)
}

func (c *Client) exchange(ctx context.Context, refreshToken string) (Credential, error) {
	resp, err := c.gateway.Post(ctx, ResourceRefresh, refreshRequest{Refresh: refreshToken}, WithoutAuth())
	if err != nil {
		return Credential{}, err
	}
	var issued Credential
	if err := resp.Decode(&issued); err != nil {
		return Credential{}, perr.New(perr.CodeRefreshFailed, err)
	}
	if issued.AccessToken == "" {
		return Credential{}, perr.New(perr.CodeRefreshFailed, errors.New("refresh response carried no access token"))
	}
	return issued, nil
}
