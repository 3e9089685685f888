package users

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/memtensor/usergrid/pkg/database"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
)

// Repository handles database operations for users
type Repository struct {
	*database.Repository[User]
}

// NewRepository creates a user repository on db
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Repository: database.NewRepository[User](db, "user")}
}

// GetUser retrieves a user by id. A missing user yields nil, nil.
func (r *Repository) GetUser(ctx context.Context, id uint64) (*User, error) {
	return r.Find(ctx, id)
}

// GetByUsername retrieves a user by username
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	return r.FindBy(ctx, map[string]interface{}{"username": username})
}

// GetByEmail retrieves a user by email, ignoring case
func (r *Repository) GetByEmail(ctx context.Context, email string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, nil
	}
	return r.FindBy(ctx, map[string]interface{}{"email": email})
}

// CountAdmins counts superusers
func (r *Repository) CountAdmins(ctx context.Context) (int64, error) {
	var n int64
	if err := r.Model(ctx).Where("is_admin = ?", true).Count(&n).Error; err != nil {
		return 0, apperrors.NewDatabaseErrorWithCause("user count failed", err)
	}
	return n, nil
}

// IsActive reports whether user may sign in
func IsActive(user *User) bool {
	return user != nil && user.IsActive
}

// IsAdmin reports whether user is a superuser
func IsAdmin(user *User) bool {
	return user != nil && user.IsAdmin
}
