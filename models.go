package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the identity record. The password hash is replaced wholesale on any
// password changing operation and never serialized to callers.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	EmailVerified bool       `bun:"email_verified" json:"email_verified"`
	Roles         []string   `bun:"roles,type:jsonb" json:"roles,omitempty"`
	ContextIDs    []string   `bun:"context_ids,type:jsonb" json:"context_ids,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// AddRole appends a role if not already present
func (u *User) AddRole(role string) *User {
	for _, r := range u.Roles {
		if r == role {
			return u
		}
	}
	u.Roles = append(u.Roles, role)
	return u
}

// AddContext records membership of a context on the user side of the
// many-to-many relation.
func (u *User) AddContext(ctx *Context) *User {
	if ctx == nil {
		return u
	}
	id := ctx.ID.String()
	for _, c := range u.ContextIDs {
		if c == id {
			return u
		}
	}
	u.ContextIDs = append(u.ContextIDs, id)
	return u
}

// Context is the tenancy boundary tokens are scoped to. UserRoles maps user
// id to the role labels the user carries inside this context; the key set is
// the live membership list, re-checked on every privileged operation.
type Context struct {
	bun.BaseModel `bun:"table:contexts,alias:ctx"`
	ID            uuid.UUID           `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string              `bun:"name,notnull" json:"name,omitempty"`
	OwnerID       uuid.UUID           `bun:"owner_id,nullzero,type:uuid" json:"owner_id,omitempty"`
	UserRoles     map[string][]string `bun:"user_roles,type:jsonb" json:"user_roles,omitempty"`
	CreatedAt     *time.Time          `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time          `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// HasMember reports whether the user id is currently in the membership map.
func (c *Context) HasMember(userID string) bool {
	if c == nil || c.UserRoles == nil {
		return false
	}
	_, ok := c.UserRoles[userID]
	return ok
}

// AddMember registers the user with the given roles (possibly none).
func (c *Context) AddMember(userID string, roles ...string) *Context {
	if c.UserRoles == nil {
		c.UserRoles = make(map[string][]string)
	}
	if roles == nil {
		roles = []string{}
	}
	c.UserRoles[userID] = roles
	return c
}

// RemoveMember drops the user from the membership map. Removal immediately
// invalidates every outstanding token scoped to this context for that user.
func (c *Context) RemoveMember(userID string) *Context {
	if c.UserRoles != nil {
		delete(c.UserRoles, userID)
	}
	return c
}
