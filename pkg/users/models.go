package users

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// User is an account that can sign in. Email and phone are optional but
// unique when present.
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"uniqueIndex;size:255;not null" json:"username"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	FullName  string    `gorm:"size:255" json:"full_name"`
	Email     *string   `gorm:"uniqueIndex;size:255" json:"email"`
	Phone     *string   `gorm:"uniqueIndex;size:32" json:"phone"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName pins the table created by the migrations
func (User) TableName() string {
	return "users"
}

// BeforeSave normalizes optional contact fields so empty values do not
// collide on the unique indexes
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.Email = normalizeOptional(u.Email, true)
	u.Phone = normalizeOptional(u.Phone, false)
	return nil
}

// EmailAddress returns the email or an empty string
func (u *User) EmailAddress() string {
	if u.Email == nil {
		return ""
	}
	return *u.Email
}

// PhoneNumber returns the phone or an empty string
func (u *User) PhoneNumber() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

// DisplayName prefers the full name over the username
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func normalizeOptional(v *string, lower bool) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	if lower {
		s = strings.ToLower(s)
	}
	return &s
}

// StringPtr returns a pointer to s, or nil when s is empty
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// CreateUserParams is the payload for creating a user
type CreateUserParams struct {
	Username string  `json:"username" form:"username" validate:"required,min=3,max=255"`
	Password string  `json:"password" form:"password" validate:"required"`
	FullName string  `json:"full_name" form:"full_name" validate:"max=255"`
	Email    *string `json:"email" form:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" form:"phone" validate:"omitempty,max=32"`
	IsAdmin  bool    `json:"is_admin" form:"is_admin"`
	IsActive *bool   `json:"is_active" form:"is_active"`
}

// UpdateUserParams is a partial update. Nil fields are left unchanged.
type UpdateUserParams struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=255"`
	Password *string `json:"password"`
	FullName *string `json:"full_name" validate:"omitempty,max=255"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
	IsAdmin  *bool   `json:"is_admin"`
	IsActive *bool   `json:"is_active"`
}

// UpdateMeParams is what a user may change on their own account
type UpdateMeParams struct {
	Password *string `json:"password"`
	FullName *string `json:"full_name" validate:"omitempty,max=255"`
	Email    *string `json:"email" validate:"omitempty,email"`
}

// ToUpdate converts to the general update payload
func (p UpdateMeParams) ToUpdate() UpdateUserParams {
	return UpdateUserParams{
		Password: p.Password,
		FullName: p.FullName,
		Email:    p.Email,
	}
}

// ResetPasswordParams is the body of a password reset
type ResetPasswordParams struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"new_password" validate:"required"`
}

// LoginCredentials are the OAuth2 password grant fields
type LoginCredentials struct {
	Username string `json:"username" form:"username" validate:"required"`
	Password string `json:"password" form:"password" validate:"required"`
}
