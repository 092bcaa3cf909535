package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openpermit/ahj-registry-api/internal/dto"
	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

type profileRepoStub struct {
	usersByID       map[string]*models.User
	usersByUsername map[string]*models.User
	maintained      map[string][]string
	grants          map[string][]string
	revoked         map[string][]string
	updated         []*models.User
	audits          []*models.AuditLog
}

func newProfileRepoStub(users ...*models.User) *profileRepoStub {
	s := &profileRepoStub{
		usersByID:       make(map[string]*models.User),
		usersByUsername: make(map[string]*models.User),
		maintained:      make(map[string][]string),
		grants:          make(map[string][]string),
		revoked:         make(map[string][]string),
	}
	for _, u := range users {
		s.usersByID[u.ID] = u
		s.usersByUsername[u.Username] = u
	}
	return s
}

func (s *profileRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.usersByID[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *profileRepoStub) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := s.usersByUsername[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *profileRepoStub) Update(ctx context.Context, user *models.User) error {
	s.updated = append(s.updated, user)
	return nil
}

func (s *profileRepoStub) SetMaintainer(ctx context.Context, userID, ahjPK string) error {
	s.grants[userID] = append(s.grants[userID], ahjPK)
	return nil
}

func (s *profileRepoStub) RevokeMaintainer(ctx context.Context, userID, ahjPK string) error {
	for _, pk := range s.maintained[userID] {
		if pk == ahjPK {
			s.revoked[userID] = append(s.revoked[userID], ahjPK)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *profileRepoStub) ListMaintainedAHJs(ctx context.Context, userID string) ([]string, error) {
	return s.maintained[userID], nil
}

func (s *profileRepoStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	s.audits = append(s.audits, log)
	return nil
}

func strPtr(v string) *string { return &v }

func TestUserServiceGetProfile(t *testing.T) {
	repo := newProfileRepoStub(&models.User{ID: "user-1", Username: "jo"})
	repo.maintained["user-1"] = []string{"ahj-1", "ahj-2"}
	svc := NewUserService(repo, nil)

	user, maintained, err := svc.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "jo", user.Username)
	assert.Equal(t, []string{"ahj-1", "ahj-2"}, maintained)
}

func TestUserServiceGetByUsernameUnknown(t *testing.T) {
	svc := NewUserService(newProfileRepoStub(), nil)

	_, _, err := svc.GetByUsername(context.Background(), "ghost")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestUserServiceUpdateProfileAppliesFields(t *testing.T) {
	repo := newProfileRepoStub(&models.User{ID: "user-1", Username: "jo", FirstName: "Jo"})
	svc := NewUserService(repo, nil)

	updated, err := svc.UpdateProfile(context.Background(), "user-1", dto.UpdateUserRequest{
		Title:       strPtr("Plan Reviewer"),
		PersonalBio: strPtr("Reviews solar permits."),
	})
	require.NoError(t, err)
	assert.Equal(t, "Plan Reviewer", updated.Title)
	assert.Equal(t, "Reviews solar permits.", updated.PersonalBio)
	// Fields left nil are untouched.
	assert.Equal(t, "Jo", updated.FirstName)
	require.Len(t, repo.updated, 1)
	require.Len(t, repo.audits, 1)
	assert.Equal(t, models.AuditActionUserUpdate, repo.audits[0].Action)
}

func TestUserServiceUpdateProfileUsernameTaken(t *testing.T) {
	repo := newProfileRepoStub(
		&models.User{ID: "user-1", Username: "jo"},
		&models.User{ID: "user-2", Username: "taken"},
	)
	svc := NewUserService(repo, nil)

	_, err := svc.UpdateProfile(context.Background(), "user-1", dto.UpdateUserRequest{
		Username: strPtr("taken"),
	})
	assert.Equal(t, appErrors.ErrConflict.Code, errorCode(t, err))
	assert.Empty(t, repo.updated)
}

func TestUserServiceSetMaintainerRequiresAdmin(t *testing.T) {
	repo := newProfileRepoStub(&models.User{ID: "user-1", Username: "jo"})
	svc := NewUserService(repo, nil)

	err := svc.SetMaintainer(context.Background(), dto.MaintainerRequest{Username: "jo", AHJPK: "ahj-1"}, memberClaims())
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, err))

	err = svc.SetMaintainer(context.Background(), dto.MaintainerRequest{Username: "jo", AHJPK: "ahj-1"}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, []string{"ahj-1"}, repo.grants["user-1"])
}

func TestUserServiceSetMaintainerUnknownUser(t *testing.T) {
	svc := NewUserService(newProfileRepoStub(), nil)

	err := svc.SetMaintainer(context.Background(), dto.MaintainerRequest{Username: "ghost", AHJPK: "ahj-1"}, adminClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestUserServiceRevokeMaintainerWithoutGrant(t *testing.T) {
	repo := newProfileRepoStub(&models.User{ID: "user-1", Username: "jo"})
	svc := NewUserService(repo, nil)

	err := svc.RevokeMaintainer(context.Background(), dto.MaintainerRequest{Username: "jo", AHJPK: "ahj-1"}, adminClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
}

func TestUserServiceRevokeMaintainer(t *testing.T) {
	repo := newProfileRepoStub(&models.User{ID: "user-1", Username: "jo"})
	repo.maintained["user-1"] = []string{"ahj-1"}
	svc := NewUserService(repo, nil)

	err := svc.RevokeMaintainer(context.Background(), dto.MaintainerRequest{Username: "jo", AHJPK: "ahj-1"}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, []string{"ahj-1"}, repo.revoked["user-1"])
}
