package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/yfschool/portal/pkg/papi/services/auth"
)

type HealthOutput struct {
	Body struct {
		Status string `json:"status" example:"ok" doc:"Health status"`
		Tokens string `json:"tokens" example:"ok" doc:"Refresh token registry status"`
	}
}

// RegisterHealth reports whether the API can issue and check refresh
// tokens. An unreachable registry answers 503 so load balancers stop
// routing logins here.
func RegisterHealth(api huma.API, svc *auth.AuthService) {
	huma.Register(api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns the health status of the portal API",
		Tags:        []string{TagHealth.String()},
	}, func(ctx context.Context, input *struct{}) (*HealthOutput, error) {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := svc.Ping(ctx); err != nil {
			return nil, huma.Error503ServiceUnavailable("refresh token registry unavailable", err)
		}
		resp := &HealthOutput{}
		resp.Body.Status = "ok"
		resp.Body.Tokens = "ok"
		return resp, nil
	})
}
