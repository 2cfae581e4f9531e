package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/blogem/wiki-sso/claims"
	"github.com/blogem/wiki-sso/config"
	"github.com/blogem/wiki-sso/models"
	"github.com/blogem/wiki-sso/repositories"
)

// fakeUserRepository is an in-memory stand-in for the sqlite-backed store
type fakeUserRepository struct {
	users     map[string]*models.User
	nextID    int
	createErr error
	lookupErr error
	creates   int
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[string]*models.User), nextID: 1}
}

func (f *fakeUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if user, ok := f.users[username]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeUserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	for _, user := range f.users {
		if user.ID == id {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepository) GetByAuthToken(ctx context.Context, token string) (*models.User, error) {
	for _, user := range f.users {
		if user.AuthToken == token && token != "" {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeUserRepository) Create(ctx context.Context, user *models.User) error {
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.users[user.Username]; ok {
		return fmt.Errorf("%w: %s", repositories.ErrDuplicateUsername, user.Username)
	}
	user.ID = f.nextID
	f.nextID++
	copied := *user
	f.users[user.Username] = &copied
	return nil
}

func (f *fakeUserRepository) UpdateAuthToken(ctx context.Context, id int, token string) error {
	for _, user := range f.users {
		if user.ID == id {
			user.AuthToken = token
			return nil
		}
	}
	return fmt.Errorf("user with ID %d not found", id)
}

func (f *fakeUserRepository) TouchLastLogin(ctx context.Context, id int) error {
	return nil
}

func (f *fakeUserRepository) Count(ctx context.Context) (int, error) {
	return len(f.users), nil
}

// ReconcileTestSuite is a test suite for the Reconcile method
type ReconcileTestSuite struct {
	suite.Suite
	repo *fakeUserRepository
	cfg  *config.Config
}

func (s *ReconcileTestSuite) SetupTest() {
	s.repo = newFakeUserRepository()
	s.cfg = &config.Config{
		UsernameClaim:       "username",
		EmailClaim:          "email",
		AuthzFailureMessage: "Not authorized",
	}
}

func (s *ReconcileTestSuite) service(policy AuthorizationPolicy, hooks ...BeforeUserSaveHook) IdentityService {
	return NewIdentityService(s.repo, s.cfg, policy, hooks...)
}

func (s *ReconcileTestSuite) TestProvisionsNewAccount() {
	svc := s.service(nil)

	doc := claims.Document(`{"username": "alice", "email": "alice@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err)
	assert.NotNil(s.T(), user)
	assert.Equal(s.T(), "alice", user.Username)
	assert.Equal(s.T(), "alice@example.org", user.Email)
	assert.Equal(s.T(), "alice", user.RealName)
	assert.True(s.T(), user.EmailConfirmed)
	assert.NotZero(s.T(), user.ID)
}

func (s *ReconcileTestSuite) TestReconcileIsIdempotent() {
	svc := s.service(nil)
	doc := claims.Document(`{"username": "alice", "email": "alice@example.org"}`)

	first, err := svc.Reconcile(context.Background(), doc)
	assert.NoError(s.T(), err)

	second, err := svc.Reconcile(context.Background(), doc)
	assert.NoError(s.T(), err)

	assert.Equal(s.T(), first.ID, second.ID)
	assert.Equal(s.T(), 1, s.repo.creates, "existing account must not be re-created")
}

func (s *ReconcileTestSuite) TestExistingAccountNotMutated() {
	s.repo.users["alice"] = &models.User{
		ID:       7,
		Username: "alice",
		Email:    "old@example.org",
		RealName: "Alice A.",
	}
	svc := s.service(nil)

	doc := claims.Document(`{"username": "alice", "email": "new@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err)
	assert.Equal(s.T(), 7, user.ID)
	assert.Equal(s.T(), "old@example.org", user.Email, "stored fields are reused unchanged")
	assert.Equal(s.T(), "old@example.org", s.repo.users["alice"].Email)
}

func (s *ReconcileTestSuite) TestMissingUsernameClaim() {
	svc := s.service(nil)

	doc := claims.Document(`{"email": "alice@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.Nil(s.T(), user)
	assert.ErrorIs(s.T(), err, ErrClaimMissing)
	assert.Equal(s.T(), 0, s.repo.creates)
}

func (s *ReconcileTestSuite) TestMissingEmailClaim() {
	svc := s.service(nil)

	doc := claims.Document(`{"username": "alice"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.Nil(s.T(), user)
	assert.ErrorIs(s.T(), err, ErrClaimMissing)
}

func (s *ReconcileTestSuite) TestNestedClaimPaths() {
	s.cfg.UsernameClaim = "data.login"
	s.cfg.EmailClaim = "data.contact.email"
	svc := s.service(nil)

	doc := claims.Document(`{"data": {"login": "bob", "contact": {"email": "bob@corp.com"}}}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "bob", user.Username)
	assert.Equal(s.T(), "bob@corp.com", user.Email)
}

func (s *ReconcileTestSuite) TestAllowlistDecline() {
	s.cfg.AllowedDomains = []string{"corp.com"}
	svc := s.service(nil)

	doc := claims.Document(`{"username": "alice", "email": "alice@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err, "allowlist miss is a silent decline, not an error")
	assert.Nil(s.T(), user)
	assert.Equal(s.T(), 0, s.repo.creates, "no account may be created on decline")
}

func (s *ReconcileTestSuite) TestAllowlistMatch() {
	s.cfg.AllowedDomains = []string{"other.org", "corp.com"}
	svc := s.service(nil)

	doc := claims.Document(`{"username": "bob", "email": "bob@corp.com"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err)
	assert.NotNil(s.T(), user)
}

func (s *ReconcileTestSuite) TestAllowlistIsCaseSensitive() {
	s.cfg.AllowedDomains = []string{"corp.com"}
	svc := s.service(nil)

	doc := claims.Document(`{"username": "bob", "email": "bob@Corp.COM"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err)
	assert.Nil(s.T(), user, "domain comparison must not normalize case")
}

func (s *ReconcileTestSuite) TestAllowlistUsesLastAtSign() {
	s.cfg.AllowedDomains = []string{"corp.com"}
	svc := s.service(nil)

	doc := claims.Document(`{"username": "tricky", "email": "x@evil.org@corp.com"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err)
	assert.NotNil(s.T(), user, "domain is derived from the part after the last @")
}

func (s *ReconcileTestSuite) TestPolicyDeny() {
	policy := PolicyFunc(func(doc claims.Document) Decision { return Deny })
	svc := s.service(policy)

	doc := claims.Document(`{"username": "alice", "email": "alice@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.Nil(s.T(), user)
	assert.ErrorIs(s.T(), err, ErrPolicyDenied)
	assert.Contains(s.T(), err.Error(), "Not authorized")
	assert.Equal(s.T(), 0, s.repo.creates)
}

func (s *ReconcileTestSuite) TestPolicyNotPermitted() {
	policy := PolicyFunc(func(doc claims.Document) Decision { return NotPermitted })
	svc := s.service(policy)

	doc := claims.Document(`{"username": "alice", "email": "alice@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err)
	assert.Nil(s.T(), user)
}

func (s *ReconcileTestSuite) TestPolicySeesFullDocument() {
	policy := PolicyFunc(func(doc claims.Document) Decision {
		if role, _ := doc.Extract("role"); role == "admin" {
			return Allow
		}
		return NotPermitted
	})
	svc := s.service(policy)

	admin := claims.Document(`{"username": "root", "email": "root@example.org", "role": "admin"}`)
	user, err := svc.Reconcile(context.Background(), admin)
	assert.NoError(s.T(), err)
	assert.NotNil(s.T(), user)

	guest := claims.Document(`{"username": "guest", "email": "guest@example.org", "role": "guest"}`)
	user, err = svc.Reconcile(context.Background(), guest)
	assert.NoError(s.T(), err)
	assert.Nil(s.T(), user)
}

func (s *ReconcileTestSuite) TestBeforeSaveHookMutatesIdentity() {
	hook := func(username, email *string, doc claims.Document) error {
		*username = "prefixed-" + *username
		return nil
	}
	svc := s.service(nil, hook)

	doc := claims.Document(`{"username": "alice", "email": "alice@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "prefixed-alice", user.Username)
	_, exists := s.repo.users["prefixed-alice"]
	assert.True(s.T(), exists)
}

func (s *ReconcileTestSuite) TestBeforeSaveHookVeto() {
	hook := func(username, email *string, doc claims.Document) error {
		return errors.New("nope")
	}
	svc := s.service(nil, hook)

	doc := claims.Document(`{"username": "alice", "email": "alice@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.Nil(s.T(), user)
	assert.Error(s.T(), err)
	assert.Equal(s.T(), 0, s.repo.creates)
}

func (s *ReconcileTestSuite) TestCreateRaceIsFatal() {
	// Lookup misses but the insert collides, as in a concurrent first login.
	s.repo.createErr = fmt.Errorf("%w: alice", repositories.ErrDuplicateUsername)
	svc := s.service(nil)

	doc := claims.Document(`{"username": "alice", "email": "alice@example.org"}`)
	user, err := svc.Reconcile(context.Background(), doc)

	assert.Nil(s.T(), user)
	assert.ErrorIs(s.T(), err, ErrAccountCreation)
}

func TestReconcileTestSuite(t *testing.T) {
	suite.Run(t, new(ReconcileTestSuite))
}

func TestIssueAndClearAuthToken(t *testing.T) {
	repo := newFakeUserRepository()
	cfg := &config.Config{UsernameClaim: "username", EmailClaim: "email"}
	svc := NewIdentityService(repo, cfg, nil)

	user := &models.User{Username: "alice", Email: "alice@example.org"}
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("Failed to seed user: %v", err)
	}

	token, err := svc.IssueAuthToken(context.Background(), user)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}
	if token == "" {
		t.Fatal("Expected non-empty token")
	}

	found, err := svc.UserByAuthToken(context.Background(), token)
	if err != nil {
		t.Fatalf("Failed to resolve token: %v", err)
	}
	if found == nil || found.Username != "alice" {
		t.Errorf("Expected to resolve alice from token, got %+v", found)
	}

	if err := svc.ClearAuthToken(context.Background(), user); err != nil {
		t.Fatalf("Failed to clear token: %v", err)
	}
	found, err = svc.UserByAuthToken(context.Background(), token)
	if err != nil {
		t.Fatalf("Unexpected error resolving cleared token: %v", err)
	}
	if found != nil {
		t.Errorf("Expected cleared token to resolve to nobody, got %+v", found)
	}
}
