package sqlstore

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/eecworkbench/eec/pkg/models"
)

// UserRepository stores accounts in the users table.
type UserRepository struct {
	db *gorm.DB
}

// AddUser implements store.UserRepository.
func (r *UserRepository) AddUser(ctx context.Context, username, hashedPassword string, scopes models.Scopes) (*models.User, error) {
	if strings.TrimSpace(username) == "" {
		return nil, models.Invalid(models.ResourceUser, "", "username is required")
	}
	normalized, err := scopes.Normalize()
	if err != nil {
		return nil, models.Invalid(models.ResourceUser, username, err.Error())
	}

	u := &models.User{
		ID:             uuid.New().String(),
		Username:       username,
		HashedPassword: hashedPassword,
		Scopes:         normalized,
	}
	if err := r.db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.AlreadyExists(models.ResourceUser, username, "username taken")
		}
		return nil, dbError(err)
	}
	return u, nil
}

// GetUser implements store.UserRepository.
func (r *UserRepository) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getByField[models.User](r.db, ctx, "id", id, models.NotFound(models.ResourceUser, id))
}

// GetUserByUsername implements store.UserRepository.
func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return getByField[models.User](r.db, ctx, "username", username, models.NotFound(models.ResourceUser, username))
}

// ListUsers implements store.UserRepository.
func (r *UserRepository) ListUsers(ctx context.Context) ([]*models.User, error) {
	return listAll[models.User](r.db, ctx, "username")
}

// update loads the user, applies fn and saves the result in one transaction.
func (r *UserRepository) update(ctx context.Context, id string, fn func(tx *gorm.DB, u *models.User) error) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&u).Error; err != nil {
			return convertNotFoundError(err, models.NotFound(models.ResourceUser, id))
		}
		if err := fn(tx, &u); err != nil {
			return err
		}
		return tx.Save(&u).Error
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, models.AlreadyExists(models.ResourceUser, u.Username, "username taken")
		}
		return nil, dbError(err)
	}
	return &u, nil
}

// ChangeUsername implements store.UserRepository.
func (r *UserRepository) ChangeUsername(ctx context.Context, id, username string) (*models.User, error) {
	return r.update(ctx, id, func(tx *gorm.DB, u *models.User) error {
		if strings.TrimSpace(username) == "" {
			return models.Invalid(models.ResourceUser, id, "username is required")
		}
		if username == u.Username {
			return nil
		}
		taken, err := exists[models.User](tx, "username", username)
		if err != nil {
			return err
		}
		if taken {
			return models.AlreadyExists(models.ResourceUser, username, "username taken")
		}
		u.Username = username
		return nil
	})
}

// ChangePassword implements store.UserRepository.
func (r *UserRepository) ChangePassword(ctx context.Context, id, hashedPassword string) (*models.User, error) {
	return r.update(ctx, id, func(_ *gorm.DB, u *models.User) error {
		u.HashedPassword = hashedPassword
		return nil
	})
}

// ChangeScopes implements store.UserRepository.
func (r *UserRepository) ChangeScopes(ctx context.Context, id string, scopes models.Scopes) (*models.User, error) {
	return r.update(ctx, id, func(_ *gorm.DB, u *models.User) error {
		normalized, err := scopes.Normalize()
		if err != nil {
			return models.Invalid(models.ResourceUser, id, err.Error())
		}
		u.Scopes = normalized
		return nil
	})
}

// DeleteUser implements store.UserRepository.
func (r *UserRepository) DeleteUser(ctx context.Context, id string) error {
	return dbError(deleteByField[models.User](r.db, ctx, "id", id, models.NotFound(models.ResourceUser, id)))
}

// deleteByField deletes records of type T matching field=value.
// Returns notFoundErr if no rows were affected.
func deleteByField[T any](db *gorm.DB, ctx context.Context, field string, value any, notFoundErr error) error {
	var zero T
	result := db.WithContext(ctx).Where(field+" = ?", value).Delete(&zero)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFoundErr
	}
	return nil
}
