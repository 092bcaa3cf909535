package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/openpermit/ahj-registry-api/internal/dto"
	"github.com/openpermit/ahj-registry-api/internal/models"
	appErrors "github.com/openpermit/ahj-registry-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	SetMaintainer(ctx context.Context, userID, ahjPK string) error
	RevokeMaintainer(ctx context.Context, userID, ahjPK string) error
	ListMaintainedAHJs(ctx context.Context, userID string) ([]string, error)
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// UserService handles profiles and maintainer assignment.
type UserService struct {
	repo   userRepository
	logger *zap.Logger
}

// NewUserService constructs the service.
func NewUserService(repo userRepository, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, logger: logger}
}

// GetProfile returns a user and the authorities they maintain.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, []string, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	maintained, err := s.repo.ListMaintainedAHJs(ctx, userID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load maintained authorities")
	}
	return user, maintained, nil
}

// GetByUsername returns a user's public profile.
func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, []string, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.ErrNotFound
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	maintained, err := s.repo.ListMaintainedAHJs(ctx, user.ID)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load maintained authorities")
	}
	return user, maintained, nil
}

// UpdateProfile applies the whitelisted profile changes to the caller's own
// account.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req dto.UpdateUserRequest) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.Username != nil && *req.Username != user.Username {
		existing, err := s.repo.FindByUsername(ctx, *req.Username)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
		}
		if existing != nil && existing.ID != user.ID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
		}
		user.Username = *req.Username
	}
	if req.FirstName != nil {
		user.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		user.LastName = *req.LastName
	}
	if req.Title != nil {
		user.Title = *req.Title
	}
	if req.PersonalBio != nil {
		user.PersonalBio = *req.PersonalBio
	}
	if req.URL != nil {
		user.URL = *req.URL
	}
	if req.CompanyAffiliation != nil {
		user.CompanyAffiliation = *req.CompanyAffiliation
	}
	if req.WorkPhone != nil {
		user.WorkPhone = *req.WorkPhone
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	s.emitAudit(ctx, userID, models.AuditActionUserUpdate, userID)
	return user, nil
}

// SetMaintainer grants a user review authority over an AHJ. Admin only.
func (s *UserService) SetMaintainer(ctx context.Context, req dto.MaintainerRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	user, err := s.repo.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := s.repo.SetMaintainer(ctx, user.ID, req.AHJPK); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grant maintainer")
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionMaintainerSet, user.ID)
	return nil
}

// RevokeMaintainer removes a user's review authority over an AHJ. The grant
// row is kept with its status flag cleared. Admin only.
func (s *UserService) RevokeMaintainer(ctx context.Context, req dto.MaintainerRequest, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	user, err := s.repo.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	if err := s.repo.RevokeMaintainer(ctx, user.ID, req.AHJPK); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no active maintainer grant")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke maintainer")
	}
	s.emitAudit(ctx, actor.UserID, models.AuditActionMaintainerSet, user.ID)
	return nil
}

func (s *UserService) emitAudit(ctx context.Context, actorID, action, resourceID string) {
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: &resourceID,
		IPAddress:  "system",
		UserAgent:  "user-service",
	}
	if err := s.repo.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
