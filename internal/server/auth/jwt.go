package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pyoneerc/deadhand/internal/common"
)

// Claims carries the standard registered claims plus the authenticated
// identity.
type Claims struct {
	jwt.RegisteredClaims
	Identity string
}

// GenerateToken mints an expiring HS256 session token for identity.
// New sessions use this form; the non-expiring "identity:hexsig"
// capability remains accepted only for tokens issued before expiry was
// introduced.
func GenerateToken(identity string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
		},
		Identity: identity,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// GetIdentityFromToken validates an HS256 session token and returns the
// identity it asserts.
func GetIdentityFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", common.ErrorAuthFailed
	}

	if !token.Valid {
		return "", common.ErrorAuthFailed
	}

	return claims.Identity, nil
}

// VerifySession resolves a session token of either kind to an identity.
// It tries the expiring JWT form first and falls back once to the legacy
// "identity:hexsig" capability. The fallback is the only place the legacy
// format is still honored.
func VerifySession(token string, secretKey []byte) (string, error) {
	if identity, err := GetIdentityFromToken(token, secretKey); err == nil {
		return identity, nil
	}
	return VerifyIdentity(token, secretKey)
}
