package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for service tests.
type memStore struct {
	users  *memUserStore
	admins *memAdminStore
}

func newMemStore() *memStore {
	return &memStore{
		users:  &memUserStore{byID: make(map[int64]*User)},
		admins: &memAdminStore{byID: make(map[int64]*Admin)},
	}
}

func (m *memStore) Users() UserStore   { return m.users }
func (m *memStore) Admins() AdminStore { return m.admins }

type memUserStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*User
}

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	u.ID = s.nextID
	clone := *u
	s.byID[u.ID] = &clone
	return nil
}

func (s *memUserStore) FindByExternalID(ctx context.Context, externalID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ExternalID == externalID {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) FindActiveByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == email && u.IsActive {
			clone := *u
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memUserStore) ActiveEmailExists(ctx context.Context, email string) (bool, error) {
	_, err := s.FindActiveByEmail(ctx, email)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (s *memUserStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	u.LoginCount++
	t := at
	u.LastLoginAt = &t
	return nil
}

func (s *memUserStore) List(ctx context.Context, limit, offset int) ([]*User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]*User, 0, len(s.byID))
	for _, u := range s.byID {
		clone := *u
		users = append(users, &clone)
	}
	return users, int64(len(s.byID)), nil
}

func (s *memUserStore) SetActive(ctx context.Context, externalID string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.ExternalID == externalID {
			u.IsActive = active
			return nil
		}
	}
	return ErrNotFound
}

type memAdminStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]*Admin
}

func (s *memAdminStore) Create(ctx context.Context, a *Admin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Username == a.Username {
			return ErrDuplicateEmail
		}
	}
	s.nextID++
	a.ID = s.nextID
	clone := *a
	s.byID[a.ID] = &clone
	return nil
}

func (s *memAdminStore) FindByExternalID(ctx context.Context, externalID string) (*Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.ExternalID == externalID {
			clone := *a
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAdminStore) FindActiveByLogin(ctx context.Context, login string) (*Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if (a.Username == login || a.Email == login) && a.IsActive {
			clone := *a
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAdminStore) FindByUsername(ctx context.Context, username string) (*Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byID {
		if a.Username == username {
			clone := *a
			return &clone, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memAdminStore) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.LoginCount++
	t := at
	a.LastLoginAt = &t
	return nil
}

// recordingSecurityLogger captures master login failures.
type recordingSecurityLogger struct {
	mu       sync.Mutex
	failures []string
}

func (l *recordingSecurityLogger) MasterLoginFailure(ip string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = append(l.failures, ip)
}

func (l *recordingSecurityLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failures)
}

func newTestService(t *testing.T, opts ...ServiceOption) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	tokens, err := NewTokenService("test-secret", 0)
	require.NoError(t, err)
	svc, err := NewService(store, tokens, opts...)
	require.NoError(t, err)
	return svc, store
}

func validInput() RegisterInput {
	return RegisterInput{
		Email:      "artist@example.com",
		Password:   "hunter2hunter2",
		Name:       "Test Artist",
		ArtistName: "DJ Test",
	}
}

func TestRegisterUser(t *testing.T) {
	svc, _ := newTestService(t)

	user, token, err := svc.RegisterUser(context.Background(), validInput())
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, user.ExternalID)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "hunter2hunter2", user.PasswordHash)

	claims, err := svc.Tokens().Verify(token)
	require.NoError(t, err)
	assert.Equal(t, user.ExternalID, claims.Subject)
	assert.False(t, claims.IsAdmin)
}

func TestRegisterUser_Validation(t *testing.T) {
	svc, _ := newTestService(t)

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
	}{
		{"missing email", func(in *RegisterInput) { in.Email = "" }},
		{"email without at sign", func(in *RegisterInput) { in.Email = "nope" }},
		{"missing name", func(in *RegisterInput) { in.Name = "  " }},
		{"short password", func(in *RegisterInput) { in.Password = "short" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, _, err := svc.RegisterUser(context.Background(), in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestRegisterUser_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.RegisterUser(context.Background(), validInput())
	require.NoError(t, err)

	in := validInput()
	in.Email = "ARTIST@example.com" // normalized before comparison
	_, _, err = svc.RegisterUser(context.Background(), in)
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestLoginUser(t *testing.T) {
	svc, _ := newTestService(t)
	registered, _, err := svc.RegisterUser(context.Background(), validInput())
	require.NoError(t, err)

	// Registration itself counted as the first login.
	assert.Equal(t, int64(1), registered.LoginCount)

	user, token, err := svc.LoginUser(context.Background(), "artist@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, registered.ExternalID, user.ExternalID)
	assert.NotEmpty(t, token)
	assert.Equal(t, int64(2), user.LoginCount)
	require.NotNil(t, user.LastLoginAt)

	user, _, err = svc.LoginUser(context.Background(), "artist@example.com", "hunter2hunter2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), user.LoginCount)
}

func TestLoginUser_GenericFailure(t *testing.T) {
	svc, store := newTestService(t)
	user, _, err := svc.RegisterUser(context.Background(), validInput())
	require.NoError(t, err)

	// Unknown email, wrong password and deactivated account are
	// indistinguishable to the caller.
	_, _, err = svc.LoginUser(context.Background(), "nobody@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = svc.LoginUser(context.Background(), "artist@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, store.users.SetActive(context.Background(), user.ExternalID, false))
	_, _, err = svc.LoginUser(context.Background(), "artist@example.com", "hunter2hunter2")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginAdmin(t *testing.T) {
	svc, store := newTestService(t)
	hash, err := HashPassword("admin password")
	require.NoError(t, err)
	require.NoError(t, store.admins.Create(context.Background(), &Admin{
		ExternalID:   "admin-ext-1",
		Username:     "support1",
		Email:        "support1@example.com",
		PasswordHash: hash,
		Role:         RoleSupport,
		Permissions:  `["ticket:resolve"]`,
		IsActive:     true,
	}))

	// Username and email both work as the login.
	admin, token, err := svc.LoginAdmin(context.Background(), "support1", "admin password")
	require.NoError(t, err)
	assert.Equal(t, "admin-ext-1", admin.ExternalID)

	claims, err := svc.Tokens().Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
	assert.False(t, claims.IsMaster)
	assert.Equal(t, string(RoleSupport), claims.Role)

	_, _, err = svc.LoginAdmin(context.Background(), "support1@example.com", "admin password")
	require.NoError(t, err)

	_, _, err = svc.LoginAdmin(context.Background(), "support1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestMasterLogin(t *testing.T) {
	security := &recordingSecurityLogger{}
	svc, store := newTestService(t,
		WithMasterCredentials("master-key", "company-code"),
		WithSecurityLogger(security),
	)

	admin, token, err := svc.MasterLogin(context.Background(), "master-key", "company-code", "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, MasterUsername, admin.Username)
	assert.Equal(t, RoleSuperAdmin, admin.Role)
	assert.True(t, admin.IsActive)
	assert.Zero(t, security.count())

	claims, err := svc.Tokens().Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin)
	assert.True(t, claims.IsMaster)

	// Provisioning is idempotent: a second escalation reuses the row.
	again, _, err := svc.MasterLogin(context.Background(), "master-key", "company-code", "203.0.113.9")
	require.NoError(t, err)
	assert.Equal(t, admin.ExternalID, again.ExternalID)
	assert.Len(t, store.admins.byID, 1)
}

func TestMasterLogin_Failure(t *testing.T) {
	security := &recordingSecurityLogger{}
	svc, _ := newTestService(t,
		WithMasterCredentials("master-key", "company-code"),
		WithSecurityLogger(security),
	)

	_, _, err := svc.MasterLogin(context.Background(), "wrong-key", "company-code", "203.0.113.9")
	assert.ErrorIs(t, err, ErrInvalidMasterCredentials)

	_, _, err = svc.MasterLogin(context.Background(), "master-key", "wrong-code", "203.0.113.9")
	assert.ErrorIs(t, err, ErrInvalidMasterCredentials)

	assert.Equal(t, 2, security.count())
}

func TestMasterLogin_UnconfiguredAlwaysFails(t *testing.T) {
	security := &recordingSecurityLogger{}
	svc, _ := newTestService(t, WithSecurityLogger(security))

	_, _, err := svc.MasterLogin(context.Background(), "", "", "203.0.113.9")
	assert.ErrorIs(t, err, ErrInvalidMasterCredentials)
	assert.Equal(t, 1, security.count())
}

func TestResolveUser(t *testing.T) {
	svc, store := newTestService(t)
	user, token, err := svc.RegisterUser(context.Background(), validInput())
	require.NoError(t, err)

	claims, err := svc.Tokens().Verify(token)
	require.NoError(t, err)

	resolved, err := svc.ResolveUser(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, user.ExternalID, resolved.ExternalID)

	// Deactivation takes effect at resolution time.
	require.NoError(t, store.users.SetActive(context.Background(), user.ExternalID, false))
	_, err = svc.ResolveUser(context.Background(), claims)
	assert.ErrorIs(t, err, ErrAccountDeactivated)
}

func TestResolveAdmin_RejectsUserToken(t *testing.T) {
	svc, _ := newTestService(t)
	_, token, err := svc.RegisterUser(context.Background(), validInput())
	require.NoError(t, err)

	claims, err := svc.Tokens().Verify(token)
	require.NoError(t, err)

	_, err = svc.ResolveAdmin(context.Background(), claims)
	assert.ErrorIs(t, err, ErrAdminRequired)
}

func TestRefresh(t *testing.T) {
	svc, store := newTestService(t)
	user, token, err := svc.RegisterUser(context.Background(), validInput())
	require.NoError(t, err)

	claims, err := svc.Tokens().Verify(token)
	require.NoError(t, err)

	fresh, err := svc.Refresh(context.Background(), claims)
	require.NoError(t, err)
	freshClaims, err := svc.Tokens().Verify(fresh)
	require.NoError(t, err)
	assert.Equal(t, user.ExternalID, freshClaims.Subject)

	require.NoError(t, store.users.SetActive(context.Background(), user.ExternalID, false))
	_, err = svc.Refresh(context.Background(), claims)
	assert.ErrorIs(t, err, ErrAccountDeactivated)
}
