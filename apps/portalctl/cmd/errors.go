package cmd

import (
	"log"

	"github.com/yfschool/portal/pkg/psdk/perr"
)

// exitIfSdkError inspects errors returned from the SDK and emits user-friendly
// guidance before exiting. Non-SDK errors fall back to log.Fatalf.
func exitIfSdkError(err error) {
	if err == nil {
		return
	}
	switch {
	case perr.IsCode(err, perr.CodeInvalidCredentials):
		log.Fatalf("login rejected: check your user id and password (%v)", err)
	case perr.IsCode(err, perr.CodeSessionExpired):
		log.Fatalf("session expired or not logged in: run 'portalctl auth login' (%v)", err)
	case perr.IsCode(err, perr.CodeTransport):
		log.Fatalf("could not reach the portal: check --base-url (%v)", err)
	case perr.IsCode(err, perr.CodeHTTP):
		log.Fatalf("request failed: %v", err)
	default:
		log.Fatalf("%v", err)
	}
}
