package psdk

import (
	"context"
	"time"

	"github.com/yfschool/portal/pkg/pauth"
	"github.com/yfschool/portal/pkg/psdk/perr"
	"golang.org/x/oauth2"
)

// TokenSource exposes the session as an oauth2.TokenSource, so clients built
// with oauth2.NewClient send the same credential the gateway does and renew it
// through the same coordinator. ctx bounds the waits for a renewal.
//
// Do not wrap it in oauth2.ReuseTokenSource: the session already caches the
// token, and a cached copy would miss logouts and renewals done elsewhere.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &sessionTokenSource{ctx: ctx, c: c}
}

type sessionTokenSource struct {
	ctx context.Context
	c   *Client
}

func (s *sessionTokenSource) Token() (*oauth2.Token, error) {
	cred, _ := s.c.session.current()
	if cred.IsZero() {
		return nil, perr.Newf(perr.CodeSessionExpired, "not logged in")
	}

	tok := cred.AccessToken
	if tok == "" || pauth.IsTokenExpired(tok, s.c.cfg.RefreshSkew, time.Now()) {
		fresh, err := s.c.refresher.Refresh(s.ctx, tok)
		if err != nil {
			return nil, refreshFailed(err)
		}
		tok = fresh.AccessToken
	}

	t := &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}
	if exp, ok := pauth.ExpiresAt(tok); ok {
		t.Expiry = exp
	}
	return t, nil
}
