package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// ContextService resolves and mutates tenancy contexts. Membership lives on
// the context record, so every lookup here reads the current state: dropping
// a user from a context is immediately visible to the next privileged
// operation.
type ContextService struct {
	store  ContextStore
	logger Logger
}

// NewContextService returns a service backed by the given store.
func NewContextService(store ContextStore) *ContextService {
	return &ContextService{
		store:  store,
		logger: defLogger{},
	}
}

func (s *ContextService) WithLogger(logger Logger) *ContextService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// GetDefaultContext finds the personal context created at registration: the
// one named after the user's email. Accounts predating the default context
// convention surface ErrMissingDefaultContext so operators can repair them.
func (s *ContextService) GetDefaultContext(ctx context.Context, user *User) (*Context, error) {
	records, err := s.store.FindByUser(ctx, user)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.Name == user.Email {
			return record, nil
		}
	}

	s.logger.Warn("user %s has no default context", user.ID)
	return nil, ErrMissingDefaultContext
}

// GetContext loads a context by id.
func (s *ContextService) GetContext(ctx context.Context, id string) (*Context, error) {
	record, err := s.store.FindByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrContextNotFound
		}
		return nil, err
	}
	return record, nil
}

// HasContext re-reads the context and checks the user is still a member.
// This is the revocation point: tokens are stateless, membership is not.
func (s *ContextService) HasContext(ctx context.Context, user *User, contextID string) (*Context, error) {
	record, err := s.GetContext(ctx, contextID)
	if err != nil {
		return nil, err
	}

	if !record.HasMember(user.ID.String()) {
		s.logger.Warn("user %s is no longer a member of context %s", user.ID, contextID)
		return nil, ErrInvalidContext
	}

	return record, nil
}

// ResolveContext returns the context a token was scoped to, falling back to
// the default context when the token carries no ctx claim, and enforces the
// membership recheck either way.
func (s *ContextService) ResolveContext(ctx context.Context, user *User, contextID string) (*Context, error) {
	if contextID == "" {
		return s.GetDefaultContext(ctx, user)
	}
	return s.HasContext(ctx, user, contextID)
}

// CreateDefaultContext builds the personal context for a freshly registered
// user: named after the email, owned by the user, with the user as its only
// member carrying no context roles.
func (s *ContextService) CreateDefaultContext(ctx context.Context, user *User) (*Context, error) {
	record := &Context{
		Name:    user.Email,
		OwnerID: user.ID,
	}
	record.AddMember(user.ID.String())

	return s.store.Save(ctx, record)
}

// CreateDefaultContextTx is the transactional variant used during
// registration so the user and its context commit or roll back together.
func (s *ContextService) CreateDefaultContextTx(ctx context.Context, tx bun.IDB, repo Contexts, user *User) (*Context, error) {
	record := &Context{
		Name:    user.Email,
		OwnerID: user.ID,
	}
	record.AddMember(user.ID.String())

	return repo.CreateTx(ctx, tx, record)
}
