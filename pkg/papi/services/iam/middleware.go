package iam

import (
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/yfschool/portal/pkg/papi/schemas"
)

// Middleware resolves a bearer token into the request principal. Requests
// without a valid token pass through anonymously; operations that need a
// principal reject them with 401.
func (s *IAMService) Middleware() func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		r, _ := humachi.Unwrap(ctx)

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
				if claims, err := s.auth.ValidateToken(parts[1]); err == nil {
					s.logger.Debug("authenticated user", "user_id", claims.UserID, "role", claims.Role)
					ctx = huma.WithValue(ctx, principalKey, &schemas.User{
						UserID:    claims.UserID,
						Name:      claims.Name,
						Role:      claims.Role,
						ClassName: claims.ClassName,
					})
					ctx = huma.WithValue(ctx, tokenKey, claims.ID)
				} else {
					s.logger.Warn("invalid token", "error", err)
				}
			}
		}

		next(ctx)
	}
}
