package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the payload of the access token: the credential presented
// on every protected API call. Verified with the public secret.
type AccessClaims struct {
	jwt.RegisteredClaims
	Roles         []string `json:"roles,omitempty"`
	ContextID     string   `json:"ctx,omitempty"`
	EmailVerified bool     `json:"ev"`
}

// IdentityClaims describe the user for client side display. The identity
// token shares the public secret with the access token but is never accepted
// as an access credential by this service.
type IdentityClaims struct {
	jwt.RegisteredClaims
	Roles         []string `json:"roles,omitempty"`
	ContextID     string   `json:"ctx,omitempty"`
	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"emailVerified"`
	Contexts      []string `json:"contexts,omitempty"`
}

// InternalClaims back the refresh, forgot-password and confirm-email tokens.
// They are signed with the internal secret and carry an audience of
// issuer+suffix so one kind cannot be replayed where another is expected.
type InternalClaims struct {
	jwt.RegisteredClaims
	ContextID string `json:"ctx,omitempty"`
}

// SubjectClaims is the common surface of the claim types above.
type SubjectClaims interface {
	GetSubject() (string, error)
}

// registeredClaims fills the shared claim set. NotBefore sits one minute in
// the past to tolerate clock skew between issuer and verifier.
func registeredClaims(issuer string, audience jwt.ClaimStrings, subject string, now time.Time, ttl time.Duration) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Audience:  audience,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}
