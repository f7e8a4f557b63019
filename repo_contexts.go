package auth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Contexts is the persistence surface for tenancy contexts.
type Contexts interface {
	repository.Repository[*Context]

	GetByName(ctx context.Context, name string) (*Context, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Context, error)
	ListForUser(ctx context.Context, user *User) ([]*Context, error)
	ListForUserTx(ctx context.Context, tx bun.IDB, user *User) ([]*Context, error)

	// ContextStore view used by the services
	FindByID(ctx context.Context, id string) (*Context, error)
	FindByUser(ctx context.Context, user *User) ([]*Context, error)
	Save(ctx context.Context, record *Context) (*Context, error)
}

type contexts struct {
	repository.Repository[*Context]
	db *bun.DB
}

var (
	_ Contexts                        = (*contexts)(nil)
	_ repository.Repository[*Context] = (*contexts)(nil)
	_ ContextStore                    = (*contexts)(nil)
)

func NewContextsRepository(db *bun.DB) Contexts {
	repo := repository.NewRepository[*Context](db, repository.ModelHandlers[*Context]{
		NewRecord: func() *Context { return &Context{} },
		GetID: func(c *Context) uuid.UUID {
			if c == nil {
				return uuid.Nil
			}
			return c.ID
		},
		SetID: func(c *Context, id uuid.UUID) {
			if c != nil {
				c.ID = id
			}
		},
	})

	return &contexts{
		Repository: repo,
		db:         db,
	}
}

func (a *contexts) GetByName(ctx context.Context, name string) (*Context, error) {
	return a.GetByNameTx(ctx, a.db, name)
}

func (a *contexts) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Context, error) {
	record := &Context{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"name": name,
				})
		}
		return nil, err
	}

	return record, nil
}

// ListForUser resolves the contexts referenced by the user record. Stale
// references, contexts deleted since the user record was written, are
// skipped rather than failing the whole lookup.
func (a *contexts) ListForUser(ctx context.Context, user *User) ([]*Context, error) {
	return a.ListForUserTx(ctx, a.db, user)
}

func (a *contexts) ListForUserTx(ctx context.Context, tx bun.IDB, user *User) ([]*Context, error) {
	records := make([]*Context, 0, len(user.ContextIDs))

	for _, id := range user.ContextIDs {
		record := &Context{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.id = ?", id).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

func (a *contexts) Create(ctx context.Context, record *Context, criteria ...repository.InsertCriteria) (*Context, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *contexts) CreateTx(ctx context.Context, tx bun.IDB, record *Context, criteria ...repository.InsertCriteria) (*Context, error) {
	prepareContextDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *contexts) FindByID(ctx context.Context, id string) (*Context, error) {
	return a.Repository.GetByID(ctx, id)
}

func (a *contexts) FindByUser(ctx context.Context, user *User) ([]*Context, error) {
	return a.ListForUser(ctx, user)
}

func (a *contexts) Save(ctx context.Context, record *Context) (*Context, error) {
	if record.ID == uuid.Nil {
		return a.Create(ctx, record)
	}
	return a.Update(ctx, record, repository.UpdateByID(record.ID.String()))
}

func prepareContextDefaults(record *Context) {
	if record == nil {
		return
	}

	if record.UserRoles == nil {
		record.UserRoles = make(map[string][]string)
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
