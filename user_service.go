package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserService drives the credential lifecycle: registration, sign in, token
// refresh, and the password and email confirmation flows. Every successful
// operation ends the same way, with a freshly minted access/identity/refresh
// triad scoped to a context the user is verifiably a member of.
type UserService struct {
	repo      RepositoryManager
	tokens    *TokenService
	contexts  *ContextService
	hasher    PasswordAuthenticator
	config    *Config
	logger    Logger
	decoyHash string
}

// NewUserService wires the lifecycle service. The hasher defaults to bcrypt
// at the configured cost. The decoy hash is built once here so the
// unknown-email compare in verifyCredentials costs the same work factor as a
// compare against a stored hash.
func NewUserService(repo RepositoryManager, tokens *TokenService, contexts *ContextService, cfg *Config) *UserService {
	cost := DefaultBcryptCost
	if cfg != nil {
		cost = cfg.bcryptCost()
	}

	return &UserService{
		repo:      repo,
		tokens:    tokens,
		contexts:  contexts,
		hasher:    NewBcryptHasher(cfg),
		config:    cfg,
		logger:    defLogger{},
		decoyHash: RandomPasswordHash(cost),
	}
}

func (s *UserService) WithLogger(logger Logger) *UserService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *UserService) WithPasswordAuthenticator(hasher PasswordAuthenticator) *UserService {
	if hasher != nil {
		s.hasher = hasher
		// rebuild the decoy with the new hasher so compares stay symmetric
		if h, err := hasher.HashPassword(uuid.NewString()); err == nil {
			s.decoyHash = h
		}
	}
	return s
}

// Register creates the user and its default context in one transaction and
// signs the new user in.
func (s *UserService) Register(ctx context.Context, email, password string) (*TokenReply, error) {
	if !s.config.RegistrationEnabled {
		return nil, ErrRegistrationDisabled
	}

	email = normalizeEmail(email)

	user := &User{}
	var defaultCtx *Context

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.Users().GetByEmailTx(ctx, tx, email); err == nil {
			return ErrUserAlreadyExists
		} else if !repository.IsRecordNotFound(err) {
			return err
		}

		hash, err := s.hasher.HashPassword(password)
		if err != nil {
			var richErr *goerrors.Error
			if errors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		user.Email = email
		user.PasswordHash = hash
		user.Roles = append([]string{}, s.config.DefaultRoles...)
		if id, err := hashid.NewUUID(email); err == nil {
			user.ID = id
		}

		if user, err = s.repo.Users().RegisterTx(ctx, tx, user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user")
		}

		if defaultCtx, err = s.contexts.CreateDefaultContextTx(ctx, tx, s.repo.Contexts(), user); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not create default context")
		}

		user.AddContext(defaultCtx)
		if user, err = s.repo.Users().UpdateTx(ctx, tx, user, repository.UpdateByID(user.ID.String())); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not link default context")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if errors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "user registration transaction failed")
	}

	return s.tokens.CreateTokensForUser(user, defaultCtx)
}

// SignIn verifies the email/password pair and mints a triad scoped to the
// user's default context.
func (s *UserService) SignIn(ctx context.Context, email, password string) (*TokenReply, error) {
	user, err := s.verifyCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	defaultCtx, err := s.contexts.GetDefaultContext(ctx, user)
	if err != nil {
		return nil, err
	}

	return s.tokens.CreateTokensForUser(user, defaultCtx)
}

// Refresh exchanges a refresh token for a new triad. The user and the
// context membership are re-read from storage; a user dropped from the
// context since issuance gets ErrInvalidContext, never a new triad.
func (s *UserService) Refresh(ctx context.Context, rawToken string) (*TokenReply, error) {
	claims, err := s.tokens.ValidateRefreshToken(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userForToken(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	resolved, err := s.contexts.ResolveContext(ctx, user, claims.ContextID)
	if err != nil {
		if errors.Is(err, ErrContextNotFound) {
			s.logger.Warn("refresh token references a deleted context %s", claims.ContextID)
			return nil, ErrInvalidContext
		}
		return nil, err
	}

	return s.tokens.CreateTokensForUser(user, resolved)
}

// ChangePassword rotates the password for the access token's subject. The
// current password is still required; a subject that no longer resolves is
// reported as a credentials failure so the response does not reveal account
// deletion. No context recheck happens here, the new triad is scoped to the
// default context.
func (s *UserService) ChangePassword(ctx context.Context, claims *AccessClaims, currentPassword, newPassword string) (*TokenReply, error) {
	user, err := s.repo.Users().FindByID(ctx, claims.Subject)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Warn("change password for unknown subject %s", claims.Subject)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.hasher.ComparePasswordAndHash(currentPassword, user.PasswordHash); err != nil {
		s.logger.Warn("change password rejected for user %s: current password mismatch", user.ID)
		return nil, ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return nil, err
	}

	defaultCtx, err := s.contexts.GetDefaultContext(ctx, user)
	if err != nil {
		return nil, err
	}

	return s.tokens.CreateTokensForUser(user, defaultCtx)
}

// UpdatePassword is the authenticated variant: driven by access token claims,
// with the context membership re-checked and the current password still
// required.
func (s *UserService) UpdatePassword(ctx context.Context, claims *AccessClaims, currentPassword, newPassword string) (*TokenReply, error) {
	user, err := s.userForToken(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	resolved, err := s.contexts.ResolveContext(ctx, user, claims.ContextID)
	if err != nil {
		if errors.Is(err, ErrContextNotFound) {
			return nil, ErrInvalidContext
		}
		return nil, err
	}

	if err := s.hasher.ComparePasswordAndHash(currentPassword, user.PasswordHash); err != nil {
		s.logger.Warn("update password rejected for user %s: current password mismatch", user.ID)
		return nil, ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return nil, err
	}

	return s.tokens.CreateTokensForUser(user, resolved)
}

// ResetPassword consumes a forgot-password token. The token subject is the
// only authorization; no current password is required.
func (s *UserService) ResetPassword(ctx context.Context, rawToken, newPassword string) (*TokenReply, error) {
	claims, err := s.tokens.ValidateForgotToken(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userForToken(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	if err := s.setPassword(ctx, user, newPassword); err != nil {
		return nil, err
	}

	defaultCtx, err := s.contexts.GetDefaultContext(ctx, user)
	if err != nil {
		return nil, err
	}

	return s.tokens.CreateTokensForUser(user, defaultCtx)
}

// GetUserForEmailConfirmation resolves the account a confirmation email
// should go to, identified by access token subject, enforcing the feature
// gate and idempotence up front.
func (s *UserService) GetUserForEmailConfirmation(ctx context.Context, id string) (*User, error) {
	if !s.config.EmailConfirmationEnabled {
		return nil, ErrEmailConfirmationDisabled
	}

	user, err := s.repo.Users().FindByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if user.EmailVerified {
		return nil, ErrEmailAlreadyConfirmed
	}

	return user, nil
}

// ConfirmEmail consumes a confirm-email token, flips the verified flag and
// signs the user in. Confirming twice is a conflict, not a no-op.
func (s *UserService) ConfirmEmail(ctx context.Context, rawToken string) (*TokenReply, error) {
	if !s.config.EmailConfirmationEnabled {
		return nil, ErrEmailConfirmationDisabled
	}

	claims, err := s.tokens.ValidateConfirmEmailToken(rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.userForToken(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	if user.EmailVerified {
		return nil, ErrEmailAlreadyConfirmed
	}

	if err := s.repo.Users().ConfirmEmail(ctx, user.ID); err != nil {
		return nil, err
	}
	user.EmailVerified = true

	defaultCtx, err := s.contexts.GetDefaultContext(ctx, user)
	if err != nil {
		return nil, err
	}

	return s.tokens.CreateTokensForUser(user, defaultCtx)
}

// FindUserByEmail is the lookup used by the mail flows.
func (s *UserService) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// verifyCredentials collapses every failure, unknown email included, into
// ErrInvalidCredentials. The unknown-email path still burns a bcrypt compare
// against the precomputed decoy hash so response timing does not leak which
// emails exist.
func (s *UserService) verifyCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.Users().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			_ = s.hasher.ComparePasswordAndHash(password, s.decoyHash)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		s.logger.Warn("sign in rejected for %s: password mismatch", email)
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// userForToken resolves a token subject to a live user. A subject that no
// longer resolves means the token outlived the account: the caller sees the
// uniform invalid token error.
func (s *UserService) userForToken(ctx context.Context, subject string) (*User, error) {
	user, err := s.repo.Users().FindByID(ctx, subject)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Warn("token subject %s does not resolve to a user", subject)
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) setPassword(ctx context.Context, user *User, newPassword string) error {
	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		var richErr *goerrors.Error
		if errors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	if err := s.repo.Users().ResetPassword(ctx, user.ID, hash); err != nil {
		if repository.IsRecordNotFound(err) {
			return ErrUserNotFound
		}
		return err
	}

	user.PasswordHash = hash
	return nil
}
