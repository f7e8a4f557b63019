// Package auth implements a stateless credential and token service: JWT
// minting and validation for five token kinds, the credential lifecycle
// around them, and context (tenant) scoped authorization.
//
// Token kinds:
//   - Access and identity tokens are signed with the public secret that
//     resource servers may hold for verification.
//   - Refresh, forgot-password and confirm-email tokens are signed with the
//     internal secret and carry a per-kind audience suffix, so a token of one
//     kind is never accepted where another is expected.
//
// Revocation:
//   - Tokens themselves are stateless. The only revocation point is the
//     membership recheck: refreshing (and other privileged operations)
//     re-reads the context record and fails if the user was dropped from it.
//
// The HTTP layer in AuthController exposes the lifecycle as a JSON API;
// storage is behind the RepositoryManager, backed by bun.
package auth
