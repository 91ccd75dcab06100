package routes

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/yfschool/portal/pkg/papi/schemas"
	"github.com/yfschool/portal/pkg/papi/services/iam"
	"github.com/yfschool/portal/pkg/papi/services/users"
)

func RegisterUsers(api huma.API, dir users.Directory, iamSvc *iam.IAMService) {
	current := func(ctx context.Context) (*users.User, error) {
		principal, err := iamSvc.Require(ctx)
		if err != nil {
			return nil, err
		}
		u, err := dir.Lookup(ctx, principal.UserID)
		if errors.Is(err, users.ErrNotFound) {
			return nil, huma.Error401Unauthorized("User not found")
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to load user", err)
		}
		return u, nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "user-info",
		Method:      http.MethodGet,
		Path:        "/api/user-info/",
		Summary:     "Get current user",
		Description: "Retrieves the profile of the currently authenticated user",
		Tags:        []string{TagUsers.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *struct{}) (*schemas.UserInfoResponse, error) {
		u, err := current(ctx)
		if err != nil {
			return nil, err
		}
		return &schemas.UserInfoResponse{Body: toSchema(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "profile-get",
		Method:      http.MethodGet,
		Path:        "/api/profile/",
		Summary:     "Get profile",
		Tags:        []string{TagUsers.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *struct{}) (*schemas.UserInfoResponse, error) {
		u, err := current(ctx)
		if err != nil {
			return nil, err
		}
		return &schemas.UserInfoResponse{Body: toSchema(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "profile-update",
		Method:      http.MethodPut,
		Path:        "/api/profile/",
		Summary:     "Update profile",
		Description: "Changes the display name of the currently authenticated user",
		Tags:        []string{TagUsers.String()},
		Security:    BearerAuth,
	}, func(ctx context.Context, input *schemas.ProfileUpdateRequest) (*schemas.UserInfoResponse, error) {
		u, err := current(ctx)
		if err != nil {
			return nil, err
		}
		u, err = dir.UpdateName(ctx, u.UserID, input.Body.Name)
		if err != nil {
			return nil, huma.Error500InternalServerError("failed to update profile", err)
		}
		return &schemas.UserInfoResponse{Body: toSchema(u)}, nil
	})
}

func toSchema(u *users.User) schemas.User {
	return schemas.User{
		UserID:    u.UserID,
		Name:      u.Name,
		Role:      u.Role,
		ClassName: u.ClassName,
	}
}
