package auth

import (
	"strings"

	"github.com/goliatone/go-errors"
)

// Credential failures collapse into a single error at the boundary so callers
// cannot distinguish "no such user" from "wrong password".
var ErrInvalidCredentials = errors.New("invalid email or password", errors.CategoryAuth).
	WithTextCode("CredentialsError").
	WithCode(errors.CodeUnauthorized)

// ErrInvalidToken is the uniform result of every token validation failure:
// malformed, expired, wrong audience, wrong signature, missing claim. The
// concrete cause is logged server side, never surfaced.
var ErrInvalidToken = errors.New("invalid jwt token", errors.CategoryAuth).
	WithTextCode("InvalidToken").
	WithCode(errors.CodeUnauthorized)

// ErrUserNotFound is internal; boundary code maps it onto ErrInvalidCredentials
// or ErrInvalidToken depending on the operation.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode("UserNotFound")

var ErrUserAlreadyExists = errors.New("user already exists", errors.CategoryConflict).
	WithTextCode("UserAlreadyExists")

var ErrRegistrationDisabled = errors.New("registration is not allowed", errors.CategoryAuth).
	WithTextCode("RegistrationDisabled").
	WithCode(errors.CodeForbidden)

var ErrEmailConfirmationDisabled = errors.New("email confirmation is not enabled", errors.CategoryAuth).
	WithTextCode("EmailConfirmationNotEnabled").
	WithCode(errors.CodeForbidden)

var ErrEmailAlreadyConfirmed = errors.New("email confirmation was already performed", errors.CategoryConflict).
	WithTextCode("UserEmailConfirmedAlready")

// ErrMissingDefaultContext means the user authenticated correctly but has no
// default context to scope tokens to; sign-in cannot complete.
var ErrMissingDefaultContext = errors.New("user has no default context", errors.CategoryConflict).
	WithTextCode("MissingDefaultContext")

var ErrContextNotFound = errors.New("context not found", errors.CategoryNotFound).
	WithTextCode("ContextNotFound")

// ErrInvalidContext: the context exists but the user is no longer a member.
// Re-checking membership on every privileged use is the only revocation
// mechanism in the system.
var ErrInvalidContext = errors.New("user does not have access to the specified context", errors.CategoryAuth).
	WithTextCode("InvalidContext").
	WithCode(errors.CodeForbidden)

var ErrNonSecureURL = errors.New("the requested url is not secure", errors.CategoryBadInput).
	WithTextCode("NonSecureUrl")

var ErrUnauthorizedDomain = errors.New("the requested url is not allowed", errors.CategoryBadInput).
	WithTextCode("UnauthorizedDomain")

// ErrNoEmptyString rejects hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty", errors.CategoryValidation).
	WithTextCode("EmptyPassword")

// ErrMismatchedHashAndPassword is the bcrypt mismatch before boundary mapping
var ErrMismatchedHashAndPassword = errors.New("password does not match", errors.CategoryAuth).
	WithTextCode("CredentialsError")

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
