package services

import (
	"log/slog"

	"github.com/yfschool/portal/pkg/kv"
	"github.com/yfschool/portal/pkg/papi/config"
	"github.com/yfschool/portal/pkg/papi/services/auth"
	"github.com/yfschool/portal/pkg/papi/services/iam"
	"github.com/yfschool/portal/pkg/papi/services/users"
)

type Services struct {
	Auth *auth.AuthService
	IAM  *iam.IAMService
}

func NewServices(cfg *config.EnvConfig, dir users.Directory, kvStore kv.Store, logger *slog.Logger) *Services {
	authSvc := auth.NewAuthService(cfg, dir, kvStore, logger)
	iamSvc := iam.NewIAMService(authSvc, logger)

	return &Services{
		Auth: authSvc,
		IAM:  iamSvc,
	}
}
