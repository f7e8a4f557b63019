package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// ClockSkewLeeway is the tolerance applied to exp/nbf/iat during validation.
const ClockSkewLeeway = 30 * time.Second

// TokenReply is the triad handed back on every successful credential
// operation.
type TokenReply struct {
	AccessToken   string `json:"accessToken"`
	IdentityToken string `json:"identityToken"`
	RefreshToken  string `json:"refreshToken"`
}

// TokenService mints and validates the five token kinds. Access and identity
// tokens are signed with the public secret that resource servers may hold;
// refresh, forgot-password and confirm-email tokens are signed with the
// internal secret only this service knows. The two key spaces never overlap,
// so a broadly shared verification key can never mint or accept an internal
// token.
type TokenService struct {
	method         jwt.SigningMethod
	secret         []byte
	internalSecret []byte
	issuer         string
	audience       jwt.ClaimStrings
	cfg            *Config
	logger         Logger
}

// NewTokenService validates the configuration and returns a ready service.
func NewTokenService(cfg *Config, logger Logger) (*TokenService, error) {
	if cfg == nil {
		return nil, errors.New("config is required", errors.CategoryBadInput)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = defLogger{}
	}

	var aud jwt.ClaimStrings
	if len(cfg.Audience) > 0 {
		aud = make(jwt.ClaimStrings, len(cfg.Audience))
		copy(aud, cfg.Audience)
	}

	return &TokenService{
		method:         cfg.signingMethod(),
		secret:         []byte(cfg.Secret),
		internalSecret: []byte(cfg.InternalSecret),
		issuer:         cfg.Issuer,
		audience:       aud,
		cfg:            cfg,
		logger:         logger,
	}, nil
}

// AccessToken mints the short lived credential presented on protected calls.
func (ts *TokenService) AccessToken(user *User, context *Context) (string, error) {
	claims := &AccessClaims{
		RegisteredClaims: registeredClaims(ts.issuer, ts.audience, user.ID.String(), time.Now(), ts.cfg.accessTTL()),
		Roles:            user.Roles,
		ContextID:        context.ID.String(),
		EmailVerified:    user.EmailVerified,
	}
	return ts.sign(claims, ts.secret)
}

// IdentityToken mints the display-only token describing the user.
func (ts *TokenService) IdentityToken(user *User, context *Context) (string, error) {
	claims := &IdentityClaims{
		RegisteredClaims: registeredClaims(ts.issuer, ts.audience, user.ID.String(), time.Now(), ts.cfg.accessTTL()),
		Roles:            user.Roles,
		ContextID:        context.ID.String(),
		Email:            user.Email,
		EmailVerified:    user.EmailVerified,
		Contexts:         user.ContextIDs,
	}
	return ts.sign(claims, ts.secret)
}

// RefreshToken mints the long lived internal token exchangeable for a new
// triad. It pins the context it was issued against.
func (ts *TokenService) RefreshToken(user *User, context *Context) (string, error) {
	claims := &InternalClaims{
		RegisteredClaims: ts.internalClaims(user, RefreshTokenSuffix, ts.cfg.refreshTTL()),
		ContextID:        context.ID.String(),
	}
	return ts.sign(claims, ts.internalSecret)
}

// ForgotPasswordToken mints the one-action token authorizing a password reset.
func (ts *TokenService) ForgotPasswordToken(user *User) (string, error) {
	claims := &InternalClaims{
		RegisteredClaims: ts.internalClaims(user, ForgotTokenSuffix, ts.cfg.forgotTTL()),
	}
	return ts.sign(claims, ts.internalSecret)
}

// ConfirmEmailToken mints the one-action token authorizing an email
// confirmation.
func (ts *TokenService) ConfirmEmailToken(user *User) (string, error) {
	claims := &InternalClaims{
		RegisteredClaims: ts.internalClaims(user, ConfirmEmailTokenSuffix, ts.cfg.confirmEmailTTL()),
	}
	return ts.sign(claims, ts.internalSecret)
}

// CreateTokensForUser mints the access/identity/refresh triad in one go.
func (ts *TokenService) CreateTokensForUser(user *User, context *Context) (*TokenReply, error) {
	access, err := ts.AccessToken(user, context)
	if err != nil {
		return nil, err
	}

	identity, err := ts.IdentityToken(user, context)
	if err != nil {
		return nil, err
	}

	refresh, err := ts.RefreshToken(user, context)
	if err != nil {
		return nil, err
	}

	return &TokenReply{
		AccessToken:   access,
		IdentityToken: identity,
		RefreshToken:  refresh,
	}, nil
}

// ValidateAccessToken verifies an access token with the public secret.
//
// NOTICE: this deliberately performs no audience check, unlike every other
// kind. The asymmetry is inherited behavior; TestValidateAccessToken
// documents it.
func (ts *TokenService) ValidateAccessToken(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(ClockSkewLeeway),
		jwt.WithIssuer(ts.issuer),
		jwt.WithExpirationRequired(),
	}

	if err := ts.parse(raw, claims, ts.secret, opts); err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		ts.logger.Error("access token is missing the subject claim")
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateRefreshToken verifies a refresh token with the internal secret.
func (ts *TokenService) ValidateRefreshToken(raw string) (*InternalClaims, error) {
	return ts.validateInternal(raw, RefreshTokenSuffix)
}

// ValidateForgotToken verifies a forgot-password token.
func (ts *TokenService) ValidateForgotToken(raw string) (*InternalClaims, error) {
	return ts.validateInternal(raw, ForgotTokenSuffix)
}

// ValidateConfirmEmailToken verifies a confirm-email token.
func (ts *TokenService) ValidateConfirmEmailToken(raw string) (*InternalClaims, error) {
	return ts.validateInternal(raw, ConfirmEmailTokenSuffix)
}

func (ts *TokenService) internalClaims(user *User, suffix string, ttl time.Duration) jwt.RegisteredClaims {
	aud := jwt.ClaimStrings{ts.issuer + suffix}
	return registeredClaims(ts.issuer, aud, user.ID.String(), time.Now(), ttl)
}

func (ts *TokenService) validateInternal(raw, suffix string) (*InternalClaims, error) {
	claims := &InternalClaims{}
	opts := []jwt.ParserOption{
		jwt.WithLeeway(ClockSkewLeeway),
		jwt.WithIssuer(ts.issuer),
		jwt.WithAudience(ts.issuer + suffix),
		jwt.WithExpirationRequired(),
	}

	if err := ts.parse(raw, claims, ts.internalSecret, opts); err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		ts.logger.Error("internal token is missing the subject claim")
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// parse runs the shared validation pipeline. Every failure collapses into
// ErrInvalidToken; the cause only reaches the log.
func (ts *TokenService) parse(raw string, claims jwt.Claims, key []byte, opts []jwt.ParserOption) error {
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		// restrict to the single configured HMAC method, never "none"
		if t.Method.Alg() != ts.method.Alg() {
			return nil, errors.New("unexpected signing method", errors.CategoryAuth).
				WithMetadata(map[string]any{"alg": t.Header["alg"]})
		}
		return key, nil
	}, opts...)

	if err != nil {
		ts.logger.Error("token validation failed: %v", err)
		return ErrInvalidToken
	}

	if !token.Valid {
		ts.logger.Error("token validation produced an invalid token")
		return ErrInvalidToken
	}

	return nil
}

// sign serializes and signs a claim set with the key id header set for
// future rotation.
func (ts *TokenService) sign(claims jwt.Claims, key []byte) (string, error) {
	token := jwt.NewWithClaims(ts.method, claims)
	token.Header["kid"] = "0"

	signed, err := token.SignedString(key)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign JWT")
	}

	return signed, nil
}
