package auth

// AccessTokenValidator is the narrow surface resource-side code needs: verify
// an access token and get its claims back, without being tied to the full
// TokenService.
type AccessTokenValidator interface {
	ValidateAccessToken(raw string) (*AccessClaims, error)
}

// AccessTokenValidatorFunc adapts a function into an AccessTokenValidator.
type AccessTokenValidatorFunc func(raw string) (*AccessClaims, error)

// ValidateAccessToken satisfies the AccessTokenValidator interface.
func (f AccessTokenValidatorFunc) ValidateAccessToken(raw string) (*AccessClaims, error) {
	if f == nil {
		return nil, ErrInvalidToken
	}
	return f(raw)
}

// MultiAccessTokenValidator tries validators in order until one accepts the
// token. Useful during key or algorithm rotation when two TokenService
// instances with different secrets coexist.
type MultiAccessTokenValidator struct {
	validators []AccessTokenValidator
}

// NewMultiAccessTokenValidator filters nil validators and returns a composite.
func NewMultiAccessTokenValidator(validators ...AccessTokenValidator) *MultiAccessTokenValidator {
	filtered := make([]AccessTokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiAccessTokenValidator{validators: filtered}
}

// ValidateAccessToken satisfies the AccessTokenValidator interface.
func (m *MultiAccessTokenValidator) ValidateAccessToken(raw string) (*AccessClaims, error) {
	for _, v := range m.validators {
		claims, err := v.ValidateAccessToken(raw)
		if err == nil {
			return claims, nil
		}
	}
	return nil, ErrInvalidToken
}

var (
	_ AccessTokenValidator = (*TokenService)(nil)
	_ AccessTokenValidator = (*MultiAccessTokenValidator)(nil)
)
