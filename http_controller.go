package auth

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// ValidationFieldError is one field level failure in a ValidationError reply.
type ValidationFieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationError is the 422 response body.
type ValidationError struct {
	Message     string                 `json:"message"`
	Code        string                 `json:"code"`
	FieldErrors []ValidationFieldError `json:"fieldErrors"`
}

func NewValidationError() *ValidationError {
	return &ValidationError{
		Message:     "Validation Failed",
		Code:        "ValidationFailed",
		FieldErrors: []ValidationFieldError{},
	}
}

func (v *ValidationError) AddFieldError(field, message, code string) *ValidationError {
	v.FieldErrors = append(v.FieldErrors, ValidationFieldError{
		Field:   field,
		Message: message,
		Code:    code,
	})
	return v
}

// GenericError is the non-validation error response body.
type GenericError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func NewGenericError(message, code string) *GenericError {
	return &GenericError{Message: message, Code: code}
}

// formatOzzoErrors flattens ozzo's field error map into the reply shape,
// sorted so responses are stable.
func formatOzzoErrors(err error) *ValidationError {
	out := NewValidationError()

	fieldErrors, ok := err.(validation.Errors)
	if !ok {
		return out.AddFieldError("", err.Error(), "InvalidValue")
	}

	fields := make([]string, 0, len(fieldErrors))
	for field := range fieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		out.AddFieldError(field, fieldErrors[field].Error(), "InvalidValue")
	}

	return out
}

// AuthControllerRoutes are the endpoint paths, overridable per deployment.
type AuthControllerRoutes struct {
	SignIn           string
	Register         string
	RefreshTokens    string
	ForgotPassword   string
	ResetPassword    string
	ChangePassword   string
	UpdatePassword   string
	SendConfirmEmail string
	ConfirmEmail     string
}

// AuthController exposes the credential lifecycle as a JSON API.
type AuthController struct {
	Logger Logger
	Users  *UserService
	Tokens *TokenService
	Mail   *MailService
	Routes *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Logger = logger
		return c
	}
}

func WithUserService(users *UserService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Users = users
		return c
	}
}

func WithTokenService(tokens *TokenService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Tokens = tokens
		return c
	}
}

func WithMailService(mail *MailService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mail = mail
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			SignIn:           "/sign-in",
			Register:         "/register",
			RefreshTokens:    "/refresh-tokens",
			ForgotPassword:   "/forgot-password",
			ResetPassword:    "/reset-password",
			ChangePassword:   "/change-password",
			UpdatePassword:   "/password",
			SendConfirmEmail: "/send-confirm-email",
			ConfirmEmail:     "/confirm-email",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Users == nil {
		panic("Missing UserService in auth controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	if c.Mail == nil {
		panic("Missing MailService in auth controller...")
	}

	return c
}

func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.SignIn, controller.SignIn).SetName("auth.sign-in")
	app.Post(controller.Routes.Register, controller.Register).SetName("auth.register")
	app.Post(controller.Routes.RefreshTokens, controller.RefreshTokens).SetName("auth.refresh-tokens")
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword).SetName("auth.forgot-password")
	app.Post(controller.Routes.ResetPassword, controller.ResetPassword).SetName("auth.reset-password")
	app.Post(controller.Routes.ChangePassword, controller.ChangePassword).SetName("auth.change-password")
	app.Put(controller.Routes.UpdatePassword, controller.UpdatePassword).SetName("auth.update-password")
	app.Post(controller.Routes.SendConfirmEmail, controller.SendConfirmEmail).SetName("auth.send-confirm-email")
	app.Post(controller.Routes.ConfirmEmail, controller.ConfirmEmail).SetName("auth.confirm-email")

	return controller
}

// SignInRequest is the credentials payload shared by sign in and register.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r SignInRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) SignIn(ctx router.Context) error {
	payload := new(SignInRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	reply, err := a.Users.SignIn(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.credentialError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, reply)
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(SignInRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	reply, err := a.Users.Register(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.credentialError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, reply)
}

// RefreshTokensRequest carries the refresh token to exchange.
type RefreshTokensRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (r RefreshTokensRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (a *AuthController) RefreshTokens(ctx router.Context) error {
	payload := new(RefreshTokensRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	reply, err := a.Users.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return a.tokenError(ctx, "refreshToken", err)
	}

	return ctx.JSON(fiber.StatusOK, reply)
}

// ForgotPasswordRequest asks for a reset link to be mailed.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
	URL   string `json:"url"`
}

func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.URL, validation.Required, is.URL),
	)
}

func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(ForgotPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	user, err := a.Users.FindUserByEmail(ctx.Context(), payload.Email)
	if err != nil {
		a.Logger.Warn("forgot password for unknown email %s", payload.Email)
		body := NewValidationError().
			AddFieldError("email", "Invalid or non existing email", "CredentialsError")
		return ctx.JSON(fiber.StatusUnprocessableEntity, body)
	}

	token, err := a.Tokens.ForgotPasswordToken(user)
	if err != nil {
		return a.internalError(ctx, err)
	}

	if err := a.Mail.SendForgotPasswordMail(ctx.Context(), user.Email, payload.URL, token); err != nil {
		return a.mailURLError(ctx, fiber.StatusUnauthorized, err)
	}

	return ctx.NoContent(fiber.StatusNoContent)
}

// ResetPasswordRequest redeems a mailed reset token for a new password.
type ResetPasswordRequest struct {
	ResetToken string `json:"resetToken"`
	Password   string `json:"password"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ResetToken, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	reply, err := a.Users.ResetPassword(ctx.Context(), payload.ResetToken, payload.Password)
	if err != nil {
		return a.tokenError(ctx, "resetToken", err)
	}

	return ctx.JSON(fiber.StatusOK, reply)
}

// ChangePasswordRequest rotates the password for an authenticated user.
type ChangePasswordRequest struct {
	AccessToken string `json:"at"`
	Password    string `json:"password"`
	NewPassword string `json:"newPassword"`
}

func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AccessToken, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) ChangePassword(ctx router.Context) error {
	payload := new(ChangePasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	claims, err := a.Tokens.ValidateAccessToken(payload.AccessToken)
	if err != nil {
		return a.tokenError(ctx, "at", err)
	}

	reply, err := a.Users.ChangePassword(ctx.Context(), claims, payload.Password, payload.NewPassword)
	if err != nil {
		return a.credentialError(ctx, err)
	}

	return ctx.JSON(fiber.StatusOK, reply)
}

// UpdatePasswordRequest rotates the password with the context membership
// re-checked.
type UpdatePasswordRequest struct {
	AccessToken string `json:"accessToken"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (r UpdatePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AccessToken, validation.Required),
		validation.Field(&r.OldPassword, validation.Required, validation.Length(6, 100)),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(6, 100)),
	)
}

func (a *AuthController) UpdatePassword(ctx router.Context) error {
	payload := new(UpdatePasswordRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	claims, err := a.Tokens.ValidateAccessToken(payload.AccessToken)
	if err != nil {
		return a.tokenError(ctx, "accessToken", err)
	}

	reply, err := a.Users.UpdatePassword(ctx.Context(), claims, payload.OldPassword, payload.NewPassword)
	if err != nil {
		switch {
		case isAuthError(err, ErrInvalidContext), isAuthError(err, ErrContextNotFound), isAuthError(err, ErrInvalidToken):
			return a.tokenError(ctx, "accessToken", err)
		default:
			return a.credentialError(ctx, err)
		}
	}

	return ctx.JSON(fiber.StatusOK, reply)
}

// SendConfirmEmailRequest asks for a confirmation link to be mailed to the
// access token's subject.
type SendConfirmEmailRequest struct {
	AccessToken string `json:"accessToken"`
	URL         string `json:"url"`
}

func (r SendConfirmEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.AccessToken, validation.Required),
		validation.Field(&r.URL, validation.Required, is.URL),
	)
}

func (a *AuthController) SendConfirmEmail(ctx router.Context) error {
	payload := new(SendConfirmEmailRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	claims, err := a.Tokens.ValidateAccessToken(payload.AccessToken)
	if err != nil {
		return a.tokenError(ctx, "accessToken", err)
	}

	user, err := a.Users.GetUserForEmailConfirmation(ctx.Context(), claims.Subject)
	if err != nil {
		return a.confirmEmailError(ctx, err)
	}

	token, err := a.Tokens.ConfirmEmailToken(user)
	if err != nil {
		return a.internalError(ctx, err)
	}

	if err := a.Mail.SendConfirmEmailMail(ctx.Context(), user.Email, payload.URL, token); err != nil {
		return a.mailURLError(ctx, fiber.StatusForbidden, err)
	}

	return ctx.NoContent(fiber.StatusNoContent)
}

// ConfirmEmailRequest redeems a mailed confirmation token.
type ConfirmEmailRequest struct {
	ConfirmEmailToken string `json:"confirmEmailToken"`
}

func (r ConfirmEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ConfirmEmailToken, validation.Required),
	)
}

func (a *AuthController) ConfirmEmail(ctx router.Context) error {
	payload := new(ConfirmEmailRequest)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.JSON(fiber.StatusUnprocessableEntity, formatOzzoErrors(err))
	}

	reply, err := a.Users.ConfirmEmail(ctx.Context(), payload.ConfirmEmailToken)
	if err != nil {
		switch {
		case isAuthError(err, ErrEmailConfirmationDisabled), isAuthError(err, ErrEmailAlreadyConfirmed):
			return a.confirmEmailError(ctx, err)
		default:
			return a.tokenError(ctx, "confirmEmailToken", err)
		}
	}

	return ctx.JSON(fiber.StatusOK, reply)
}

/*
 * Error mapping
 * ------------------------------------------------------------------------
 */

func isAuthError(err, target error) bool {
	return errors.Is(err, target)
}

func (a *AuthController) badPayload(ctx router.Context, err error) error {
	a.Logger.Error("failed to parse request body: %v", err)
	return ctx.JSON(fiber.StatusBadRequest, NewGenericError("Could not parse request body", "MalformedBody"))
}

func (a *AuthController) internalError(ctx router.Context, err error) error {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) && len(richErr.Metadata) > 0 {
		a.Logger.Error("internal error: %v metadata: %s", err, print.MaybePrettyJSON(richErr.Metadata))
	} else {
		a.Logger.Error("internal error: %v", err)
	}
	return ctx.JSON(fiber.StatusInternalServerError, NewGenericError("Internal server error", "InternalError"))
}

// credentialError maps lifecycle failures for the credential endpoints. The
// 422 replies deliberately use one indistinct body for wrong password,
// unknown user and duplicate registration.
func (a *AuthController) credentialError(ctx router.Context, err error) error {
	switch {
	case isAuthError(err, ErrRegistrationDisabled):
		a.Logger.Warn("register request received but registration is disabled")
		return ctx.JSON(fiber.StatusForbidden, NewGenericError("Registration is not allowed", "RegistrationDisabled"))

	case isAuthError(err, ErrMissingDefaultContext):
		a.Logger.Warn("user has no default context")
		return ctx.JSON(fiber.StatusFailedDependency, NewGenericError("User has no context", "MissingDefaultContext"))

	case isAuthError(err, ErrInvalidCredentials),
		isAuthError(err, ErrUserNotFound),
		isAuthError(err, ErrUserAlreadyExists):
		body := NewValidationError().
			AddFieldError("email", "Invalid email or password", "CredentialsError").
			AddFieldError("password", "Invalid email or password", "CredentialsError")
		return ctx.JSON(fiber.StatusUnprocessableEntity, body)

	default:
		return a.internalError(ctx, err)
	}
}

// tokenError maps token validation failures onto the field carrying the bad
// token. Context revocation folds into the same reply on purpose: a refresh
// token whose membership was revoked is just an invalid token to the caller.
func (a *AuthController) tokenError(ctx router.Context, field string, err error) error {
	switch {
	case isAuthError(err, ErrInvalidToken),
		isAuthError(err, ErrInvalidContext),
		isAuthError(err, ErrContextNotFound),
		isAuthError(err, ErrInvalidCredentials),
		isAuthError(err, ErrUserNotFound):
		body := NewValidationError().
			AddFieldError(field, "Invalid jwt token", "InvalidToken")
		return ctx.JSON(fiber.StatusUnprocessableEntity, body)

	case isAuthError(err, ErrMissingDefaultContext):
		return ctx.JSON(fiber.StatusFailedDependency, NewGenericError("User has no context", "MissingDefaultContext"))

	default:
		return a.internalError(ctx, err)
	}
}

func (a *AuthController) mailURLError(ctx router.Context, status int, err error) error {
	switch {
	case isAuthError(err, ErrNonSecureURL):
		return ctx.JSON(status, NewGenericError("The requested url is not secure", "NonSecureUrl"))

	case isAuthError(err, ErrUnauthorizedDomain):
		return ctx.JSON(status, NewGenericError("The requested url is not allowed", "UnauthorizedDomain"))

	default:
		return a.internalError(ctx, err)
	}
}

func (a *AuthController) confirmEmailError(ctx router.Context, err error) error {
	switch {
	case isAuthError(err, ErrEmailConfirmationDisabled):
		return ctx.JSON(fiber.StatusForbidden, NewGenericError("Email confirmation is not enabled", "EmailConfirmationNotEnabled"))

	case isAuthError(err, ErrEmailAlreadyConfirmed):
		return ctx.JSON(fiber.StatusForbidden, NewGenericError("Email confirmation was already performed", "UserEmailConfirmedAlready"))

	case isAuthError(err, ErrUserNotFound):
		body := NewValidationError().
			AddFieldError("accessToken", "Invalid JWT access token", "CredentialsError")
		return ctx.JSON(fiber.StatusUnprocessableEntity, body)

	default:
		return a.internalError(ctx, err)
	}
}
