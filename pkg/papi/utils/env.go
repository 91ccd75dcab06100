package utils

import (
	"fmt"
	"os"
	"strings"
)

// Environment names the deployment stage the portal API runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// ParseEnvironment accepts the canonical names plus the usual short forms.
// An empty value means development.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dev", "development", "local":
		return Development, nil
	case "stage", "staging":
		return Staging, nil
	case "prod", "production":
		return Production, nil
	}
	return "", fmt.Errorf("unknown environment %q", s)
}

func (e Environment) IsDev() bool  { return e == Development }
func (e Environment) IsProd() bool { return e == Production }

// CurrentEnvironment reads ENVIRONMENT before the rest of the config is
// loaded, so .env handling can depend on it. Unknown values count as
// development.
func CurrentEnvironment() Environment {
	env, err := ParseEnvironment(os.Getenv("ENVIRONMENT"))
	if err != nil {
		return Development
	}
	return env
}
