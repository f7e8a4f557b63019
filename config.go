package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// Audience suffixes keep internal token kinds from being replayed against
// each other even though they share the internal signing key.
const (
	RefreshTokenSuffix      = "#refresh"
	ForgotTokenSuffix       = "#forgot"
	ConfirmEmailTokenSuffix = "#confirm-email"
)

// signingMethods is the explicit allow-list of signature algorithms. Unknown
// identifiers fail at boot via Config.Validate, never per request.
var signingMethods = map[string]jwt.SigningMethod{
	"HS256": jwt.SigningMethodHS256,
	"HS384": jwt.SigningMethodHS384,
	"HS512": jwt.SigningMethodHS512,
}

// Config holds every knob the service recognizes. It is built once at process
// start, validated, and passed by reference into each constructor; nothing
// mutates it afterwards.
type Config struct {
	// SigningMethod identifies the JWS algorithm: HS256, HS384 or HS512.
	SigningMethod string
	// Secret signs access and identity tokens, the kinds third parties may
	// verify.
	Secret string
	// InternalSecret signs refresh, forgot-password and confirm-email tokens,
	// the kinds only this service redeems.
	InternalSecret string
	Issuer         string
	Audience       []string

	// TTLs are minutes, matching the original configuration surface.
	TTL             int
	TTLRefresh      int
	TTLForgot       int
	TTLConfirmEmail int

	RegistrationEnabled      bool
	DefaultRoles             []string
	EmailConfirmationEnabled bool

	HTTPSOnly      bool
	AllowedDomains []string

	// BcryptCost is the hasher work factor; zero picks DefaultBcryptCost.
	BcryptCost int
}

// DefaultBcryptCost mirrors the work factor we use everywhere else.
const DefaultBcryptCost = 14

// DefaultConfig returns a Config with the same defaults the original service
// shipped with. Secrets and issuer still have to be provided.
func DefaultConfig() *Config {
	return &Config{
		SigningMethod:   "HS512",
		TTL:             60,
		TTLRefresh:      60 * 8,
		TTLForgot:       60,
		TTLConfirmEmail: 60 * 8,
		HTTPSOnly:       true,
		BcryptCost:      DefaultBcryptCost,
	}
}

// Validate fails fast on an unusable configuration so a bad deploy dies at
// boot instead of failing per request.
func (c *Config) Validate() error {
	if _, ok := signingMethods[c.SigningMethod]; !ok {
		return errors.New("invalid jwt signing method: "+c.SigningMethod, errors.CategoryValidation).
			WithTextCode("InvalidSigningMethod")
	}

	if c.Secret == "" {
		return errors.New("signing secret is required", errors.CategoryValidation)
	}

	if c.InternalSecret == "" {
		return errors.New("internal signing secret is required", errors.CategoryValidation)
	}

	if c.Secret == c.InternalSecret {
		return errors.New("public and internal signing secrets must differ", errors.CategoryValidation)
	}

	if c.Issuer == "" {
		return errors.New("issuer is required", errors.CategoryValidation)
	}

	if c.TTL <= 0 || c.TTLRefresh <= 0 || c.TTLForgot <= 0 || c.TTLConfirmEmail <= 0 {
		return errors.New("token TTLs must be positive", errors.CategoryValidation)
	}

	return nil
}

func (c *Config) signingMethod() jwt.SigningMethod {
	return signingMethods[c.SigningMethod]
}

func (c *Config) bcryptCost() int {
	if c.BcryptCost <= 0 {
		return DefaultBcryptCost
	}
	return c.BcryptCost
}

func (c *Config) accessTTL() time.Duration  { return time.Duration(c.TTL) * time.Minute }
func (c *Config) refreshTTL() time.Duration { return time.Duration(c.TTLRefresh) * time.Minute }
func (c *Config) forgotTTL() time.Duration  { return time.Duration(c.TTLForgot) * time.Minute }
func (c *Config) confirmEmailTTL() time.Duration {
	return time.Duration(c.TTLConfirmEmail) * time.Minute
}
