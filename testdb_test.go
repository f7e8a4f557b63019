package auth_test

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	auth "github.com/authomator/authomator-api"
)

const (
	sqliteCreateUsers = `CREATE TABLE users (
    id TEXT NOT NULL PRIMARY KEY,
    email TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    email_verified BOOLEAN NOT NULL DEFAULT 0,
    roles TEXT NOT NULL DEFAULT '[]',
    context_ids TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP,
    deleted_at TIMESTAMP
);`
	sqliteCreateContexts = `CREATE TABLE contexts (
    id TEXT NOT NULL PRIMARY KEY,
    name TEXT NOT NULL,
    owner_id TEXT,
    user_roles TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = db.Exec(sqliteCreateUsers)
	require.NoError(t, err)
	_, err = db.Exec(sqliteCreateContexts)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

// newTestConfig keeps the bcrypt cost low so the credential flows stay fast.
func newTestConfig() *auth.Config {
	cfg := auth.DefaultConfig()
	cfg.SigningMethod = "HS256"
	cfg.Secret = "public-test-secret"
	cfg.InternalSecret = "internal-test-secret"
	cfg.Issuer = "authomator-test"
	cfg.Audience = []string{"authomator-test"}
	cfg.RegistrationEnabled = true
	cfg.EmailConfirmationEnabled = true
	cfg.AllowedDomains = []string{"authomator.io", "localhost"}
	cfg.BcryptCost = 4
	return cfg
}

type testStack struct {
	cfg      *auth.Config
	repo     auth.RepositoryManager
	tokens   *auth.TokenService
	contexts *auth.ContextService
	users    *auth.UserService
}

func newTestStack(t *testing.T, mutate ...func(*auth.Config)) *testStack {
	t.Helper()

	cfg := newTestConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	db := setupTestDB(t)

	tokens, err := auth.NewTokenService(cfg, newMockLogger())
	require.NoError(t, err)

	repo := auth.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	contexts := auth.NewContextService(repo.Contexts()).WithLogger(newMockLogger())
	users := auth.NewUserService(repo, tokens, contexts, cfg).WithLogger(newMockLogger())

	return &testStack{
		cfg:      cfg,
		repo:     repo,
		tokens:   tokens,
		contexts: contexts,
		users:    users,
	}
}
