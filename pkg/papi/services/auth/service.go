package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/yfschool/portal/pkg/kv"
	"github.com/yfschool/portal/pkg/papi/config"
	"github.com/yfschool/portal/pkg/papi/services/users"
	"github.com/yfschool/portal/pkg/pauth"
)

const (
	// TokenAudience is the expected audience claim for access tokens.
	TokenAudience = "portal"
	TokenIssuer   = "portal"

	// Key prefixes for KV store
	kvPrefixRefresh = "auth:refresh:"
	kvPrefixUsed    = "auth:used:"
	kvPrefixRevoked = "auth:family-revoked:"
)

var (
	ErrInvalidRefreshToken  = errors.New("token is invalid or expired")
	ErrRefreshTokenNotOwned = errors.New("refresh token belongs to another user")
)

// AuthService issues and checks the portal's credentials: HS256 access
// tokens carrying the user's profile, and opaque refresh tokens registered
// in kv under their SHA-256.
//
// With rotation enabled each refresh token is single use. Presenting one
// that was already exchanged revokes every token descended from the same
// login.
type AuthService struct {
	jwtSecret  []byte
	users      users.Directory
	kv         kv.Store
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
	now        func() time.Time
	logger     *slog.Logger
}

type refreshRecord struct {
	UserID string `json:"user_id"`
	Family string `json:"family"`
}

func NewAuthService(cfg *config.EnvConfig, dir users.Directory, kvStore kv.Store, logger *slog.Logger) *AuthService {
	return &AuthService{
		jwtSecret:  []byte(cfg.AuthSecret),
		users:      dir,
		kv:         kvStore,
		accessTTL:  time.Duration(cfg.AccessTokenTTL) * time.Second,
		refreshTTL: time.Duration(cfg.RefreshTokenTTL) * time.Second,
		rotate:     cfg.RotateRefreshTokens,
		now:        time.Now,
		logger:     logger.With("component", "auth"),
	}
}

func (s *AuthService) Users() users.Directory {
	return s.users
}

// Login checks the password and starts a new token family.
func (s *AuthService) Login(ctx context.Context, userID, password string) (access, refresh string, err error) {
	u, err := users.Authenticate(ctx, s.users, userID, password)
	if err != nil {
		return "", "", err
	}
	access, err = s.IssueAccessToken(u)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.createRefreshToken(ctx, refreshRecord{UserID: u.UserID, Family: uuid.NewString()})
	if err != nil {
		return "", "", err
	}
	s.logger.Info("login", "user_id", u.UserID)
	return access, refresh, nil
}

// Refresh exchanges a refresh token for a new access token. rotated is the
// replacement refresh token, empty when rotation is disabled.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (access, rotated string, err error) {
	hash := hashToken(refreshToken)

	var data []byte
	if s.rotate {
		data, err = s.kv.GetDel(ctx, kvPrefixRefresh+hash)
	} else {
		data, err = s.kv.Get(ctx, kvPrefixRefresh+hash)
	}
	if errors.Is(err, kv.ErrNotFound) {
		s.detectReuse(ctx, hash)
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", err
	}

	var rec refreshRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return "", "", fmt.Errorf("decoding refresh record: %w", err)
	}
	if s.familyRevoked(ctx, rec.Family) {
		return "", "", ErrInvalidRefreshToken
	}

	u, err := s.users.Lookup(ctx, rec.UserID)
	if errors.Is(err, users.ErrNotFound) {
		return "", "", ErrInvalidRefreshToken
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch user: %w", err)
	}

	access, err = s.IssueAccessToken(u)
	if err != nil {
		return "", "", err
	}

	if s.rotate {
		if err := s.kv.Set(ctx, kvPrefixUsed+hash, []byte(rec.Family), s.refreshTTL); err != nil {
			s.logger.Warn("failed to record consumed refresh token", "error", err)
		}
		rotated, err = s.createRefreshToken(ctx, rec)
		if err != nil {
			return "", "", err
		}
	}
	return access, rotated, nil
}

// Revoke forgets a refresh token. Unknown tokens are ignored.
func (s *AuthService) Revoke(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.kv.Delete(ctx, kvPrefixRefresh+hashToken(refreshToken))
}

// Logout revokes the refresh token posted by userID. A token issued to
// another user is left alone and ErrRefreshTokenNotOwned is returned; an
// unknown one is ignored. jti identifies the access token the request
// carried and is only logged.
func (s *AuthService) Logout(ctx context.Context, userID, jti, refreshToken string) error {
	if refreshToken != "" {
		data, err := s.kv.Get(ctx, kvPrefixRefresh+hashToken(refreshToken))
		switch {
		case errors.Is(err, kv.ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		var rec refreshRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("decoding refresh record: %w", err)
		}
		if rec.UserID != userID {
			s.logger.Warn("logout with another user's refresh token", "user_id", userID, "owner", rec.UserID, "jti", jti)
			return ErrRefreshTokenNotOwned
		}
	}
	if err := s.Revoke(ctx, refreshToken); err != nil {
		return err
	}
	s.logger.Info("logout", "user_id", userID, "jti", jti, "revoked", refreshToken != "")
	return nil
}

// Ping checks that the refresh-token registry is reachable.
func (s *AuthService) Ping(ctx context.Context) error {
	_, err := s.kv.Get(ctx, kvPrefixRefresh+"ping")
	if errors.Is(err, kv.ErrNotFound) {
		return nil
	}
	return err
}

func (s *AuthService) detectReuse(ctx context.Context, hash string) {
	family, err := s.kv.Get(ctx, kvPrefixUsed+hash)
	if err != nil {
		return
	}
	set, err := s.kv.SetNX(ctx, kvPrefixRevoked+string(family), []byte("1"), s.refreshTTL)
	if err != nil {
		s.logger.Warn("failed to revoke token family", "error", err)
		return
	}
	if set {
		s.logger.Warn("refresh token reused; token family revoked", "family", string(family))
	}
}

func (s *AuthService) familyRevoked(ctx context.Context, family string) bool {
	_, err := s.kv.Get(ctx, kvPrefixRevoked+family)
	return err == nil
}

// IssueAccessToken mints the HS256 access token for u. The profile fields
// travel in the token so clients can show who is logged in without a call.
func (s *AuthService) IssueAccessToken(u *users.User) (string, error) {
	now := s.now()
	uc := &pauth.UserClaims{
		UserID:    u.UserID,
		Name:      u.Name,
		Role:      u.Role,
		ClassName: u.ClassName,
		Iss:       TokenIssuer,
		Aud:       TokenAudience,
		ID:        uuid.NewString(),
		Iat:       now.Unix(),
		Exp:       now.Add(s.accessTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, pauth.ToClaims(uc))
	return token.SignedString(s.jwtSecret)
}

// ValidateToken verifies an access token's signature, expiry, issuer and
// audience and returns its claims. It enforces HMAC signing to avoid
// algorithm confusion.
func (s *AuthService) ValidateToken(tokenString string) (*pauth.UserClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	},
		jwt.WithAudience(TokenAudience),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return pauth.FromMapClaims(claims)
}

func (s *AuthService) createRefreshToken(ctx context.Context, rec refreshRecord) (string, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	for attempt := 0; attempt < 3; attempt++ {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		raw := base64.RawURLEncoding.EncodeToString(buf)
		ok, err := s.kv.SetNX(ctx, kvPrefixRefresh+hashToken(raw), value, s.refreshTTL)
		if err != nil {
			return "", fmt.Errorf("failed to store refresh token: %w", err)
		}
		if ok {
			return raw, nil
		}
	}
	return "", errors.New("failed to allocate a unique refresh token")
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
