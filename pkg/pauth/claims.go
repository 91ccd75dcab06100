package pauth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserClaims is the flat view of a portal access token payload.
// When parsed without verification it is only good for display and local
// expiry decisions, never for authorization.
type UserClaims struct {
	UserID    string
	Name      string
	Role      string
	ClassName string
	Iss       string
	Aud       string
	ID        string
	Iat       int64
	Exp       int64
}

// ParseTokenClaims extracts raw claims from a JWT without verifying its
// signature. Numeric timestamps come back as float64.
func ParseTokenClaims(tokenStr string) (jwt.MapClaims, error) {
	var claims jwt.MapClaims
	parser := jwt.NewParser()
	_, _, err := parser.ParseUnverified(tokenStr, &claims)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

func FromToken(tokenStr string) (*UserClaims, error) {
	claims, err := ParseTokenClaims(tokenStr)
	if err != nil {
		return nil, err
	}
	return FromMapClaims(claims)
}

// FromMapClaims maps token claims into UserClaims. It tolerates string and
// numeric forms of `sub` (student numbers are often numeric) and of the
// timestamp claims.
func FromMapClaims(mc jwt.MapClaims) (*UserClaims, error) {
	uc := &UserClaims{}

	if sub, ok := mc["sub"]; ok {
		uc.UserID = stringish(sub)
	}
	if uid, ok := mc["user_id"]; ok && uc.UserID == "" {
		uc.UserID = stringish(uid)
	}

	if name, ok := mc["name"].(string); ok {
		uc.Name = name
	}
	if role, ok := mc["role"].(string); ok {
		uc.Role = role
	}
	if cn, ok := mc["class_name"].(string); ok {
		uc.ClassName = cn
	}
	if iss, ok := mc["iss"].(string); ok {
		uc.Iss = iss
	}
	if jti, ok := mc["jti"].(string); ok {
		uc.ID = jti
	}

	switch aud := mc["aud"].(type) {
	case string:
		uc.Aud = aud
	case []any:
		if len(aud) > 0 {
			uc.Aud, _ = aud[0].(string)
		}
	}

	uc.Iat = unixish(mc["iat"])
	uc.Exp = unixish(mc["exp"])

	return uc, nil
}

func stringish(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func unixish(v any) int64 {
	switch v := v.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// ToClaims converts UserClaims into jwt.MapClaims for signing. Empty fields
// are omitted so tokens stay compact.
func ToClaims(uc *UserClaims) jwt.MapClaims {
	mc := jwt.MapClaims{}
	if uc.UserID != "" {
		mc["sub"] = uc.UserID
	}
	if uc.Name != "" {
		mc["name"] = uc.Name
	}
	if uc.Role != "" {
		mc["role"] = uc.Role
	}
	if uc.ClassName != "" {
		mc["class_name"] = uc.ClassName
	}
	if uc.Iss != "" {
		mc["iss"] = uc.Iss
	}
	if uc.Aud != "" {
		mc["aud"] = uc.Aud
	}
	if uc.ID != "" {
		mc["jti"] = uc.ID
	}
	if uc.Iat != 0 {
		mc["iat"] = uc.Iat
	}
	if uc.Exp != 0 {
		mc["exp"] = uc.Exp
	}
	return mc
}

// ExpiresAt returns the token's exp claim. ok is false for opaque tokens and
// for JWTs without exp.
func ExpiresAt(token string) (t time.Time, ok bool) {
	uc, err := FromToken(token)
	if err != nil || uc.Exp == 0 {
		return time.Time{}, false
	}
	return time.Unix(uc.Exp, 0), true
}

// IsTokenExpired returns true when the access token is expired or within the
// provided skew window. Tokens that are not JWTs, or carry no exp, are never
// reported as expired: the server's 401 remains the source of truth for them.
func IsTokenExpired(token string, skew time.Duration, now time.Time) bool {
	if token == "" {
		return true
	}
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !now.Before(exp.Add(-skew))
}
