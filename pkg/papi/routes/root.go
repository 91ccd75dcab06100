package routes

import (
	"github.com/danielgtaylor/huma/v2"
	"github.com/yfschool/portal/pkg/papi/services"
)

func RegisterRoutes(api huma.API, svcs *services.Services) {
	RegisterHealth(api, svcs.Auth)
	RegisterAuth(api, svcs.Auth, svcs.IAM)
	RegisterUsers(api, svcs.Auth.Users(), svcs.IAM)
}
