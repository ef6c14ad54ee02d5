// Package auth implements the authentication core: account types, bcrypt
// credential hashing, JWT bearer tokens, capability-set authorization, and
// the credential-store operations (registration, login, admin login, and the
// master escalation path).
//
// Tokens are self-contained and never revocable before natural expiry; a
// logout is purely client-side. Liveness is instead enforced by re-resolving
// the token subject against the store on every request, so deactivating an
// account takes effect immediately.
package auth
