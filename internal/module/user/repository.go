package user

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/simp-lee/usersvc/internal/domain"
	"github.com/simp-lee/usersvc/internal/pkg"
)

// userRepository implements domain.UserStore using GORM.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserStore backed by the given GORM database.
func NewUserRepository(db *gorm.DB) domain.UserStore {
	return &userRepository{db: db}
}

// Create inserts a new user. An empty ID is replaced by a random UUID.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return mapError(err)
	}
	return nil
}

// FindFirst returns the user with the given id, or (nil, nil) when there is none.
func (r *userRepository) FindFirst(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

// FindMany returns up to take users after skipping skip, oldest first.
func (r *userRepository) FindMany(ctx context.Context, skip, take int) ([]domain.User, error) {
	var users []domain.User
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Order("id ASC").
		Offset(skip).
		Limit(take).
		Find(&users).Error
	if err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// Count returns the number of stored users regardless of status.
func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

// Update writes fields to the user with the given id and returns the stored
// record. It fails with a not-found error when no row matches.
func (r *userRepository) Update(ctx context.Context, id string, fields map[string]any) (*domain.User, error) {
	var user domain.User
	err := pkg.WithTx(ctx, r.db, func(tx *gorm.DB) error {
		result := tx.Model(&domain.User{}).Where("id = ?", id).Updates(fields)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errRecordToUpdateNotFound()
		}
		return tx.Where("id = ?", id).Take(&user).Error
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &user, nil
}

func errRecordToUpdateNotFound() *domain.AppError {
	return domain.NewAppError(domain.CodeNotFound, "record to update not found", nil)
}

// mapError converts GORM errors to domain errors. Domain errors pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateKeyError(err) {
		return domain.NewAppError(domain.CodeAlreadyExists, "already exists", err)
	}
	return domain.NewAppError(domain.CodeInternal, "database error", err)
}

// isDuplicateKeyError detects unique constraint violations by examining the
// error message. This is needed because not all GORM dialectors translate
// driver-level errors to gorm.ErrDuplicatedKey (e.g. the pure-Go SQLite driver).
func isDuplicateKeyError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "duplicate entry")
}
