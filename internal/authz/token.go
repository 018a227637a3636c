package authz

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/homebase-id/odin-core-sub020/internal/faults"
	"github.com/homebase-id/odin-core-sub020/internal/identity"
)

// AppTokenClaims are the claims carried by an app bearer token. Callers
// presenting one are AuthClassOther: they can finalize transfers, but never
// qualify for the direct-write path.
type AppTokenClaims struct {
	jwt.RegisteredClaims
	Identity string `json:"odinIdentity"`
}

// IssueAppToken signs an HS256 bearer token for the given identity.
func IssueAppToken(id identity.ID, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AppTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		Identity: id.String(),
	})
	return token.SignedString(secretKey)
}

// IdentityFromAppToken validates an app bearer token and returns the caller
// identity it names. Invalid or expired tokens are access-denied faults.
func IdentityFromAppToken(tokenString string, secretKey []byte) (identity.ID, error) {
	claims := &AppTokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		return "", faults.Wrap(faults.ClassSecurity, faults.CodeAccessDenied, "invalid app token", err)
	}
	if !token.Valid {
		return "", faults.Security(faults.CodeAccessDenied, "invalid app token")
	}

	return identity.Parse(claims.Identity)
}
