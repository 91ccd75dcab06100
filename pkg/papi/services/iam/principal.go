package iam

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/yfschool/portal/pkg/papi/schemas"
)

type ctxKey string

const (
	principalKey ctxKey = "portal.principal"
	tokenKey     ctxKey = "portal.token"
)

// Principal returns the user the request's access token was issued to.
func (s *IAMService) Principal(ctx context.Context) (*schemas.User, bool) {
	p, ok := ctx.Value(principalKey).(*schemas.User)
	return p, ok && p != nil
}

// Require is Principal for operations that need a logged-in user. The
// message mirrors the portal's 401 body so clients can show it verbatim.
func (s *IAMService) Require(ctx context.Context) (*schemas.User, error) {
	if p, ok := s.Principal(ctx); ok {
		return p, nil
	}
	return nil, huma.Error401Unauthorized("Authentication credentials were not provided.")
}

// TokenID returns the jti of the access token the request was made with.
func (s *IAMService) TokenID(ctx context.Context) string {
	id, _ := ctx.Value(tokenKey).(string)
	return id
}
