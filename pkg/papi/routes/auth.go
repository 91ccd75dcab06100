package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/yfschool/portal/pkg/papi/schemas"
	"github.com/yfschool/portal/pkg/papi/services/auth"
	"github.com/yfschool/portal/pkg/papi/services/iam"
	"github.com/yfschool/portal/pkg/papi/services/users"
)

func RegisterAuth(api huma.API, svc *auth.AuthService, iamSvc *iam.IAMService) {
	huma.Register(api, huma.Operation{
		OperationID: "auth-login",
		Method:      http.MethodPost,
		Path:        "/api/login/",
		Summary:     "Log in",
		Description: "Exchanges a user id and password for an access/refresh token pair",
		Tags:        []string{TagAuth.String()},
	}, func(ctx context.Context, input *schemas.LoginRequest) (*schemas.TokenPairResponse, error) {
		access, refresh, err := svc.Login(ctx, input.Body.UserID, input.Body.Password)
		if errors.Is(err, users.ErrInvalidCredentials) {
			return nil, huma.Error401Unauthorized(users.ErrInvalidCredentials.Error())
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("login failed", err)
		}
		resp := &schemas.TokenPairResponse{}
		resp.Body.Access = access
		resp.Body.Refresh = refresh
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "auth-refresh",
		Method:      http.MethodPost,
		Path:        "/api/token/refresh/",
		Summary:     "Refresh access token",
		Description: "Issues a new access token for a refresh token; with rotation enabled the refresh token is replaced as well",
		Tags:        []string{TagAuth.String()},
	}, func(ctx context.Context, input *schemas.RefreshTokenRequest) (*schemas.RefreshTokenResponse, error) {
		access, rotated, err := svc.Refresh(ctx, input.Body.Refresh)
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			return nil, huma.Error401Unauthorized("Token is invalid or expired")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("refresh failed", err)
		}
		resp := &schemas.RefreshTokenResponse{}
		resp.Body.Access = access
		resp.Body.Refresh = rotated
		return resp, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "auth-logout",
		Method:        http.MethodPost,
		Path:          "/api/logout/",
		Summary:       "Log out",
		Description:   "Revokes the posted refresh token",
		Tags:          []string{TagAuth.String()},
		Security:      BearerAuth,
		DefaultStatus: http.StatusResetContent,
	}, func(ctx context.Context, input *schemas.LogoutRequest) (*schemas.ResetContentResponse, error) {
		user, err := iamSvc.Require(ctx)
		if err != nil {
			return nil, err
		}
		err = svc.Logout(ctx, user.UserID, iamSvc.TokenID(ctx), input.Body.Refresh)
		if errors.Is(err, auth.ErrRefreshTokenNotOwned) {
			return nil, huma.Error403Forbidden("Token does not belong to the authenticated user")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("logout failed", err)
		}
		return &schemas.ResetContentResponse{Status: http.StatusResetContent}, nil
	})
}
