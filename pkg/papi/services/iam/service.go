package iam

import (
	"log/slog"

	"github.com/yfschool/portal/pkg/papi/services/auth"
)

type IAMService struct {
	auth   *auth.AuthService
	logger *slog.Logger
}

func NewIAMService(auth *auth.AuthService, logger *slog.Logger) *IAMService {
	return &IAMService{auth: auth, logger: logger.With("component", "iam")}
}
