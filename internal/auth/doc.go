// Package auth verifies the identity of API callers.
//
// Users and sessions are managed elsewhere; this service only validates
// HS256 access tokens signed with the shared secret and maps the caller's
// role onto a static permission table. Project-level access (which sites
// and devices a user may see) is decided by the project repository, not
// by the token.
package auth
