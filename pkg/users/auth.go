package users

import (
	"context"
	"fmt"
	"strconv"
	"time"
	"unicode"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/tokens"
	"github.com/memtensor/usergrid/pkg/types"
)

// Token audiences keep access and reset tokens from being swapped
const (
	AudienceAccess = "usergrid:access"
	AudienceReset  = "usergrid:password-reset"
)

// Client facing authentication messages
const (
	MsgIncorrectCredentials = "Incorrect email or password"
	MsgCouldNotValidate     = "Could not validate credentials"
)

// AuthService signs and checks tokens and passwords
type AuthService struct {
	config     *Config
	repository *Repository
	used       tokens.Store
	now        func() time.Time
}

// NewAuthService creates a new authentication service. used records spent
// reset tokens; nil keeps them in memory.
func NewAuthService(config *Config, repository *Repository, used tokens.Store) *AuthService {
	if used == nil {
		used = tokens.NewMemoryStore()
	}
	return &AuthService{
		config:     config,
		repository: repository,
		used:       used,
		now:        time.Now,
	}
}

// ResetClaims are the verified contents of a password reset token
type ResetClaims struct {
	Email     string
	ID        string
	ExpiresAt time.Time
}

// Authenticate checks username and password and issues an access token.
// Unknown users and wrong passwords get the same error.
func (as *AuthService) Authenticate(ctx context.Context, credentials LoginCredentials) (*types.Token, *User, error) {
	user, err := as.repository.GetByUsername(ctx, credentials.Username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !as.VerifyPassword(credentials.Password, user.Password) {
		return nil, nil, apperrors.NewValidationError(MsgIncorrectCredentials)
	}
	if !user.IsActive {
		return nil, nil, apperrors.NewInactiveUserError()
	}

	access, err := as.GenerateAccessToken(user)
	if err != nil {
		return nil, nil, apperrors.NewInternalErrorWithCause("failed to generate access token", err)
	}
	return &types.Token{AccessToken: access, TokenType: types.TokenTypeBearer}, user, nil
}

// GenerateAccessToken signs a bearer token whose subject is the user id
func (as *AuthService) GenerateAccessToken(user *User) (string, error) {
	now := as.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatUint(user.ID, 10),
		Issuer:    as.config.Issuer,
		Audience:  jwt.ClaimStrings{AudienceAccess},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(as.config.AccessTokenExpire)),
		ID:        uuid.NewString(),
	}
	return as.sign(claims)
}

// ValidateToken resolves an access token to its user
func (as *AuthService) ValidateToken(ctx context.Context, tokenString string) (*User, error) {
	claims, err := as.parse(tokenString, AudienceAccess)
	if err != nil {
		return nil, apperrors.NewForbiddenError(MsgCouldNotValidate)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return nil, apperrors.NewForbiddenError(MsgCouldNotValidate)
	}

	user, err := as.repository.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewNotFoundError("User")
	}
	return user, nil
}

// GenerateResetToken signs a password reset token for email
func (as *AuthService) GenerateResetToken(email string) (string, error) {
	now := as.now()
	claims := jwt.RegisteredClaims{
		Subject:   email,
		Issuer:    as.config.Issuer,
		Audience:  jwt.ClaimStrings{AudienceReset},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(as.config.ResetTokenExpire)),
		ID:        uuid.NewString(),
	}
	return as.sign(claims)
}

// VerifyResetToken checks signature, audience and expiry. It does not
// spend the token.
func (as *AuthService) VerifyResetToken(tokenString string) (*ResetClaims, error) {
	claims, err := as.parse(tokenString, AudienceReset)
	if err != nil || claims.Subject == "" || claims.ID == "" || claims.ExpiresAt == nil {
		return nil, apperrors.NewInvalidTokenError()
	}
	return &ResetClaims{
		Email:     claims.Subject,
		ID:        claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// ConsumeResetToken marks a verified token as used. A second use is an
// invalid token.
func (as *AuthService) ConsumeResetToken(ctx context.Context, claims *ResetClaims) error {
	ttl := claims.ExpiresAt.Sub(as.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	fresh, err := as.used.MarkUsed(ctx, claims.ID, ttl)
	if err != nil {
		return err
	}
	if !fresh {
		return apperrors.NewInvalidTokenError()
	}
	return nil
}

func (as *AuthService) sign(claims jwt.RegisteredClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(as.config.SecretKey))
}

func (as *AuthService) parse(tokenString, audience string) (*jwt.RegisteredClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(as.now),
	}
	if as.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(as.config.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(as.config.SecretKey), nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// HashPassword hashes a password using bcrypt after checking the policy
func (as *AuthService) HashPassword(password string) (string, error) {
	if err := as.ValidatePassword(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.NewInternalErrorWithCause("failed to hash password", err)
	}
	return string(hash), nil
}

// VerifyPassword verifies a password against its hash
func (as *AuthService) VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// ValidatePassword validates a password against the configured policy
func (as *AuthService) ValidatePassword(password string) error {
	policy := as.config.PasswordPolicy

	if len(password) < policy.MinLength {
		return apperrors.NewValidationError(fmt.Sprintf("password must be at least %d characters long", policy.MinLength)).
			WithDetail("field", "password")
	}
	if len(password) > 72 {
		return apperrors.NewValidationError("password must be at most 72 bytes long").WithDetail("field", "password")
	}

	if policy.RequireUppercase && !containsAny(password, unicode.IsUpper) {
		return apperrors.NewValidationError("password must contain at least one uppercase letter")
	}
	if policy.RequireLowercase && !containsAny(password, unicode.IsLower) {
		return apperrors.NewValidationError("password must contain at least one lowercase letter")
	}
	if policy.RequireNumbers && !containsAny(password, unicode.IsDigit) {
		return apperrors.NewValidationError("password must contain at least one number")
	}
	if policy.RequireSymbols && !containsAny(password, isSymbol) {
		return apperrors.NewValidationError("password must contain at least one special character")
	}

	return nil
}

func containsAny(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if pred(r) {
			return true
		}
	}
	return false
}

func isSymbol(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
