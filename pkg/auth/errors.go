package auth

import "errors"

// Sentinel errors for the authentication core. The API layer maps these to
// HTTP status codes; everything else is rendered as a generic 500.
var (
	// ErrValidation indicates malformed or incomplete input.
	ErrValidation = errors.New("validation failed")

	// ErrMissingToken indicates no bearer token was supplied.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken indicates the token signature or structure is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken indicates the token expiry has passed.
	ErrExpiredToken = errors.New("token expired")
	// ErrAdminRequired indicates the token does not carry the admin claim.
	ErrAdminRequired = errors.New("admin access required")

	// ErrAccountNotFound indicates no row exists for the token subject.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountDeactivated indicates the account row exists but is inactive.
	// Deactivated accounts are treated as non-existent for auth purposes.
	ErrAccountDeactivated = errors.New("account deactivated")

	// ErrInvalidCredentials is returned for both unknown accounts and wrong
	// passwords so callers cannot tell which half failed.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrDuplicateEmail indicates an active account already uses the email.
	ErrDuplicateEmail = errors.New("account with this email already exists")

	// ErrPermissionDenied indicates the admin lacks a required capability.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrMalformedPermissions indicates the stored permission set could not
	// be parsed. Evaluation fails closed, never open.
	ErrMalformedPermissions = errors.New("malformed permission set")

	// ErrInvalidMasterCredentials is returned for any master-login mismatch,
	// regardless of which of the two values was wrong.
	ErrInvalidMasterCredentials = errors.New("invalid master credentials")

	// ErrNotFound indicates a store row does not exist.
	ErrNotFound = errors.New("not found")
)
