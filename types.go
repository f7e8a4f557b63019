package auth

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// UserStore is the lookup surface the credential lifecycle needs. The bun
// backed repository satisfies it; tests swap in mocks.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Save(ctx context.Context, user *User) (*User, error)
}

// ContextStore is the lookup surface for tenancy contexts.
type ContextStore interface {
	FindByID(ctx context.Context, id string) (*Context, error)
	FindByUser(ctx context.Context, user *User) ([]*Context, error)
	Save(ctx context.Context, record *Context) (*Context, error)
}

// PasswordAuthenticator authenticates passwords
type PasswordAuthenticator interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// MailTransport delivers rendered notification emails. Delivery is external
// to this service; the core only produces the address and the token link.
type MailTransport interface {
	SendForgotPasswordEmail(ctx context.Context, email, link string) error
	SendConfirmEmailEmail(ctx context.Context, email, link string) error
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
