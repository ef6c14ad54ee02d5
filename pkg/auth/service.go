package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SecurityLogger receives high-visibility notices about failed attempts on
// the master escalation path. Distinct from normal audit logging: repeated
// failures here indicate a targeted attack, not user error.
type SecurityLogger interface {
	MasterLoginFailure(ip string, at time.Time)
}

type noopSecurityLogger struct{}

func (noopSecurityLogger) MasterLoginFailure(string, time.Time) {}

// Service implements the credential-store operations and the master
// escalation path on top of a Store and a TokenService.
type Service struct {
	store    Store
	tokens   *TokenService
	security SecurityLogger
	now      func() time.Time

	masterKey   string
	companyCode string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithMasterCredentials enables the master escalation path. Both values must
// come from configuration; with either empty, every master login fails.
func WithMasterCredentials(key, code string) ServiceOption {
	return func(s *Service) {
		s.masterKey = key
		s.companyCode = code
	}
}

// WithSecurityLogger sets the escalation-failure log channel.
func WithSecurityLogger(l SecurityLogger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.security = l
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a Service.
func NewService(store Store, tokens *TokenService, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if tokens == nil {
		return nil, errors.New("auth: token service is required")
	}
	svc := &Service{
		store:    store,
		tokens:   tokens,
		security: noopSecurityLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Tokens exposes the underlying token service for verification paths.
func (s *Service) Tokens() *TokenService { return s.tokens }

// RegisterInput is the payload for user registration.
type RegisterInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	ArtistName string `json:"artist_name"`
}

func (in *RegisterInput) validate() error {
	in.Email = NormalizeEmail(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	in.ArtistName = strings.TrimSpace(in.ArtistName)
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return fmt.Errorf("%w: valid email is required", ErrValidation)
	}
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(in.Password) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrValidation)
	}
	return nil
}

// NormalizeEmail lower-cases and trims an email for comparison and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterUser creates a user account and returns it with a freshly minted
// token. An active account with the same email fails with ErrDuplicateEmail.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*User, string, error) {
	if err := in.validate(); err != nil {
		return nil, "", err
	}
	exists, err := s.store.Users().ActiveEmailExists(ctx, in.Email)
	if err != nil {
		return nil, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return nil, "", ErrDuplicateEmail
	}
	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}
	now := s.now().UTC()
	user := &User{
		ExternalID:   uuid.NewString(),
		Email:        in.Email,
		Name:         in.Name,
		ArtistName:   in.ArtistName,
		PasswordHash: hash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, user); err != nil {
		return nil, "", fmt.Errorf("create user: %w", err)
	}
	// Registration hands back a live session, so it counts as the first login.
	if err := s.store.Users().RecordLogin(ctx, user.ID, now); err != nil {
		return nil, "", fmt.Errorf("record login: %w", err)
	}
	user.LoginCount = 1
	user.LastLoginAt = &now
	token, err := s.tokens.IssueUser(user.ExternalID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// LoginUser authenticates by email and password. Unknown email, inactive
// account, and wrong password all return the same ErrInvalidCredentials.
func (s *Service) LoginUser(ctx context.Context, email, password string) (*User, string, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}
	user, err := s.store.Users().FindActiveByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("find user: %w", err)
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	now := s.now().UTC()
	if err := s.store.Users().RecordLogin(ctx, user.ID, now); err != nil {
		return nil, "", fmt.Errorf("record login: %w", err)
	}
	user.LoginCount++
	user.LastLoginAt = &now
	token, err := s.tokens.IssueUser(user.ExternalID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// LoginAdmin authenticates an administrator by username or email.
func (s *Service) LoginAdmin(ctx context.Context, login, password string) (*Admin, string, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}
	admin, err := s.store.Admins().FindActiveByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("find admin: %w", err)
	}
	if err := VerifyPassword(admin.PasswordHash, password); err != nil {
		return nil, "", ErrInvalidCredentials
	}
	now := s.now().UTC()
	if err := s.store.Admins().RecordLogin(ctx, admin.ID, now); err != nil {
		return nil, "", fmt.Errorf("record login: %w", err)
	}
	admin.LoginCount++
	admin.LastLoginAt = &now
	token, err := s.tokens.IssueAdmin(admin.ExternalID, admin.Role, false)
	if err != nil {
		return nil, "", err
	}
	return admin, token, nil
}

// MasterLogin compares the supplied pair against the configured master key
// and company code, provisions the reserved super admin on first use, and
// issues a token with the master flag set. Both comparisons are constant
// time. Any mismatch returns the same error and emits a security log entry
// with the caller's address.
func (s *Service) MasterLogin(ctx context.Context, suppliedKey, suppliedCode, ip string) (*Admin, string, error) {
	if s.masterKey == "" || s.companyCode == "" {
		s.security.MasterLoginFailure(ip, s.now().UTC())
		return nil, "", ErrInvalidMasterCredentials
	}
	keyOK := subtle.ConstantTimeCompare([]byte(suppliedKey), []byte(s.masterKey)) == 1
	codeOK := subtle.ConstantTimeCompare([]byte(suppliedCode), []byte(s.companyCode)) == 1
	if !keyOK || !codeOK {
		s.security.MasterLoginFailure(ip, s.now().UTC())
		return nil, "", ErrInvalidMasterCredentials
	}

	admin, err := s.ensureMasterAdmin(ctx)
	if err != nil {
		return nil, "", err
	}
	now := s.now().UTC()
	if err := s.store.Admins().RecordLogin(ctx, admin.ID, now); err != nil {
		return nil, "", fmt.Errorf("record login: %w", err)
	}
	admin.LoginCount++
	admin.LastLoginAt = &now
	token, err := s.tokens.IssueAdmin(admin.ExternalID, admin.Role, true)
	if err != nil {
		return nil, "", err
	}
	return admin, token, nil
}

// ensureMasterAdmin finds or provisions the reserved escalation account. The
// stored credential is a hash of the master key so the account can also log
// in through the ordinary admin path.
func (s *Service) ensureMasterAdmin(ctx context.Context) (*Admin, error) {
	admin, err := s.store.Admins().FindByUsername(ctx, MasterUsername)
	if err == nil {
		return admin, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find master admin: %w", err)
	}
	hash, err := HashPassword(s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("hash master key: %w", err)
	}
	perms, err := PermissionSet{PermissionWildcard: {}}.Serialize()
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	admin = &Admin{
		ExternalID:   uuid.NewString(),
		Username:     MasterUsername,
		Email:        MasterUsername + "@system.local",
		PasswordHash: hash,
		Role:         RoleSuperAdmin,
		Permissions:  perms,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Admins().Create(ctx, admin); err != nil {
		// Lost a provisioning race; the row exists now.
		if existing, findErr := s.store.Admins().FindByUsername(ctx, MasterUsername); findErr == nil {
			return existing, nil
		}
		return nil, fmt.Errorf("provision master admin: %w", err)
	}
	return admin, nil
}

// ResolveUser re-resolves token claims against the user store, confirming
// the account still exists and is active.
func (s *Service) ResolveUser(ctx context.Context, claims *Claims) (*User, error) {
	user, err := s.store.Users().FindByExternalID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}
	return user, nil
}

// ResolveAdmin re-resolves admin token claims against the admin store.
func (s *Service) ResolveAdmin(ctx context.Context, claims *Claims) (*Admin, error) {
	if !claims.IsAdmin {
		return nil, ErrAdminRequired
	}
	admin, err := s.store.Admins().FindByExternalID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("resolve admin: %w", err)
	}
	if !admin.IsActive {
		return nil, ErrAccountDeactivated
	}
	return admin, nil
}

// Refresh mints a fresh user token for a still-live account.
func (s *Service) Refresh(ctx context.Context, claims *Claims) (string, error) {
	user, err := s.ResolveUser(ctx, claims)
	if err != nil {
		return "", err
	}
	return s.tokens.IssueUser(user.ExternalID)
}

// ListUsers pages through all accounts for the admin console.
func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int64, error) {
	return s.store.Users().List(ctx, limit, offset)
}

// SetUserActive activates or deactivates an account. Deactivation takes
// effect at the next session resolution; outstanding tokens stop working
// then.
func (s *Service) SetUserActive(ctx context.Context, externalID string, active bool) error {
	return s.store.Users().SetActive(ctx, externalID, active)
}
