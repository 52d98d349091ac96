package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-records/platform/go/auth"
	"github.com/zenGate-Global/palmyra-records/platform/go/gcp"
)

// buildAuthMiddleware constructs the JWT middleware with tenant claim enforcement.
func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) func(http.Handler) http.Handler {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "firebase":
		var credentials *string
		if cfg.FirebaseConfig != "" {
			credentials = &cfg.FirebaseConfig
		}
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, credentials)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("unsupported auth provider", zap.String("provider", cfg.AuthProvider))
	}

	return platformauth.JWT(verify, extractCredentials)
}

// extractCredentials requires the tenant claim to be a tenant id and normalizes it.
func extractCredentials(claims map[string]interface{}) (*platformauth.UserCredentials, error) {
	creds, err := platformauth.DefaultCredentialExtractor(claims)
	if err != nil {
		return nil, err
	}
	if creds.TenantID == nil || *creds.TenantID == "" {
		return nil, errors.New("tenant claim required")
	}
	tid, err := uuid.Parse(*creds.TenantID)
	if err != nil {
		return nil, errors.New("tenant claim must be a tenant id")
	}
	idStr := tid.String()
	creds.TenantID = &idStr
	return creds, nil
}
