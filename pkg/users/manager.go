package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/memtensor/usergrid/pkg/config"
	"github.com/memtensor/usergrid/pkg/datatable"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/interfaces"
	"github.com/memtensor/usergrid/pkg/logger"
	"github.com/memtensor/usergrid/pkg/mail"
	"github.com/memtensor/usergrid/pkg/metrics"
	"github.com/memtensor/usergrid/pkg/tokens"
	"github.com/memtensor/usergrid/pkg/types"
)

// Client facing messages of the account flows
const (
	MsgUnknownUser     = "The user with this username does not exist in the system."
	MsgRecoverySent    = "Password recovery email sent"
	MsgPasswordUpdated = "Password updated successfully"
	MsgUserCreated     = "Create new user successfully!"
	MsgUserUpdated     = "Update user successfully!"
	MsgUserDeleted     = "Delete user successfully!"
	MsgUserNotFound    = "User not found!"
)

// Manager is the main user management service that coordinates all user operations
type Manager struct {
	config      *Config
	db          *gorm.DB
	repository  *Repository
	authService *AuthService
	mailer      mail.Mailer
	table       *datatable.Table[User]
	store       tokens.Store
	logger      interfaces.Logger
	metrics     interfaces.Metrics
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the manager logger
func WithLogger(l interfaces.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics sets the metrics sink shared with the users grid
func WithMetrics(mt interfaces.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// WithMailer sets the mailer used for password recovery
func WithMailer(mailer mail.Mailer) Option {
	return func(m *Manager) { m.mailer = mailer }
}

// WithTokenStore sets where spent reset tokens are recorded
func WithTokenStore(store tokens.Store) Option {
	return func(m *Manager) { m.store = store }
}

// NewManager creates a new user manager instance
func NewManager(db *gorm.DB, cfg *Config, opts ...Option) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		config:  cfg,
		db:      db,
		logger:  logger.NewLogger(),
		metrics: metrics.NewNoOpMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mailer == nil {
		m.mailer = mail.NewLogMailer(m.logger)
	}
	if m.store == nil {
		m.store = tokens.NewMemoryStore()
	}

	m.repository = NewRepository(db)
	m.authService = NewAuthService(cfg, m.repository, m.store)
	m.table = NewTable(
		datatable.WithLimits(datatable.Limits{Default: cfg.DefaultLimit, Max: cfg.MaxLimit}),
		datatable.WithLogger(m.logger),
		datatable.WithMetrics(m.metrics),
	)
	return m, nil
}

// Repository returns the user repository
func (m *Manager) Repository() *Repository {
	return m.repository
}

// Auth returns the authentication service
func (m *Manager) Auth() *AuthService {
	return m.authService
}

// Table returns the users grid definition
func (m *Manager) Table() *datatable.Table[User] {
	return m.table
}

// DB returns the database handle the manager was built on
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// CreateUser creates a new user with the specified parameters
func (m *Manager) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	if err := validateStruct(params); err != nil {
		return nil, err
	}

	hash, err := m.authService.HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user := &User{
		Username: params.Username,
		Password: hash,
		FullName: params.FullName,
		Email:    params.Email,
		Phone:    params.Phone,
		IsAdmin:  params.IsAdmin,
		IsActive: true,
	}
	if params.IsActive != nil {
		user.IsActive = *params.IsActive
	}

	if err := m.repository.Create(ctx, user); err != nil {
		return nil, err
	}
	if !user.IsActive {
		// the column default would otherwise win over the zero value
		if err := m.repository.Update(ctx, user, map[string]interface{}{"is_active": false}); err != nil {
			return nil, err
		}
	}

	m.log(ctx).Info("User created", map[string]interface{}{"user_id": user.ID, "username": user.Username})
	return user, nil
}

// GetUser retrieves a user by id
func (m *Manager) GetUser(ctx context.Context, id uint64) (*User, error) {
	user, err := m.repository.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperrors.NewAppError(types.ErrorTypeNotFound, apperrors.ErrCodeNotFound, MsgUserNotFound).
			WithDetail("id", id)
	}
	return user, nil
}

// UpdateUser applies a partial update. A provided password is re-hashed.
func (m *Manager) UpdateUser(ctx context.Context, id uint64, params UpdateUserParams) (*User, error) {
	user, err := m.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.update(ctx, user, params)
}

// UpdateMe lets a signed-in user change their password, name or email
func (m *Manager) UpdateMe(ctx context.Context, user *User, params UpdateMeParams) (*User, error) {
	return m.update(ctx, user, params.ToUpdate())
}

func (m *Manager) update(ctx context.Context, user *User, params UpdateUserParams) (*User, error) {
	if err := validateStruct(params); err != nil {
		return nil, err
	}

	fields := make(map[string]interface{})
	if params.Username != nil {
		fields["username"] = *params.Username
	}
	if params.Password != nil {
		hash, err := m.authService.HashPassword(*params.Password)
		if err != nil {
			return nil, err
		}
		fields["password"] = hash
	}
	if params.FullName != nil {
		fields["full_name"] = *params.FullName
	}
	if params.Email != nil {
		fields["email"] = nullable(normalizeOptional(params.Email, true))
	}
	if params.Phone != nil {
		fields["phone"] = nullable(normalizeOptional(params.Phone, false))
	}
	if params.IsAdmin != nil {
		fields["is_admin"] = *params.IsAdmin
	}
	if params.IsActive != nil {
		fields["is_active"] = *params.IsActive
	}

	if err := m.repository.Update(ctx, user, fields); err != nil {
		return nil, err
	}

	m.log(ctx).Info("User updated", map[string]interface{}{"user_id": user.ID, "fields": len(fields)})
	return user, nil
}

// DeleteUser removes a user
func (m *Manager) DeleteUser(ctx context.Context, id uint64) (*User, error) {
	user, err := m.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	deleted, err := m.repository.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, apperrors.NewAppError(types.ErrorTypeNotFound, apperrors.ErrCodeNotFound, MsgUserNotFound)
	}

	m.log(ctx).Info("User deleted", map[string]interface{}{"user_id": id})
	return user, nil
}

// Authenticate signs a user in
func (m *Manager) Authenticate(ctx context.Context, credentials LoginCredentials) (*types.Token, error) {
	if err := validateStruct(credentials); err != nil {
		return nil, err
	}

	token, user, err := m.authService.Authenticate(ctx, credentials)
	status := "ok"
	if err != nil {
		status = "failed"
	}
	m.metrics.Counter("auth_logins_total", 1, map[string]string{"status": status})

	if err != nil {
		m.log(ctx).Warn("Login failed", map[string]interface{}{"username": credentials.Username, "error": err.Error()})
		return nil, err
	}

	m.log(ctx).Info("Login succeeded", map[string]interface{}{"user_id": user.ID})
	return token, nil
}

// CurrentUser resolves a bearer token to an active user
func (m *Manager) CurrentUser(ctx context.Context, token string) (*User, error) {
	user, err := m.authService.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !IsActive(user) {
		return nil, apperrors.NewInactiveUserError()
	}
	return user, nil
}

// RequireSuperuser fails unless user is an admin
func (m *Manager) RequireSuperuser(user *User) error {
	if !IsAdmin(user) {
		return apperrors.NewPrivilegesError()
	}
	return nil
}

// RecoverPassword mails a reset link to the account registered for email
func (m *Manager) RecoverPassword(ctx context.Context, email string) error {
	user, err := m.repository.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.NewAppError(types.ErrorTypeNotFound, apperrors.ErrCodeNotFound, MsgUnknownUser)
	}

	token, err := m.authService.GenerateResetToken(user.EmailAddress())
	if err != nil {
		return apperrors.NewInternalErrorWithCause("failed to generate reset token", err)
	}

	msg, err := mail.ResetPasswordMessage(m.config.MailFrom, mail.ResetPasswordData{
		ProjectName: m.config.ProjectName,
		Username:    user.Username,
		Email:       user.EmailAddress(),
		Link:        mail.ResetLink(m.config.ResetURL, token),
		ValidHours:  mail.ValidHours(m.config.ResetTokenExpire),
	})
	if err != nil {
		return err
	}

	if err := m.mailer.Send(ctx, msg); err != nil {
		return err
	}

	m.log(ctx).Info("Password recovery sent", map[string]interface{}{"user_id": user.ID, "backend": m.mailer.Name()})
	return nil
}

// ResetPassword sets a new password using a recovery token. Each token
// works once.
func (m *Manager) ResetPassword(ctx context.Context, params ResetPasswordParams) error {
	if err := validateStruct(params); err != nil {
		return err
	}

	claims, err := m.authService.VerifyResetToken(params.Token)
	if err != nil {
		return err
	}

	user, err := m.repository.GetByEmail(ctx, claims.Email)
	if err != nil {
		return err
	}
	if user == nil {
		return apperrors.NewAppError(types.ErrorTypeNotFound, apperrors.ErrCodeNotFound, MsgUnknownUser)
	}
	if !IsActive(user) {
		return apperrors.NewInactiveUserError()
	}

	hash, err := m.authService.HashPassword(params.NewPassword)
	if err != nil {
		return err
	}
	if err := m.authService.ConsumeResetToken(ctx, claims); err != nil {
		return err
	}
	if err := m.repository.Update(ctx, user, map[string]interface{}{"password": hash}); err != nil {
		return err
	}

	m.log(ctx).Info("Password reset", map[string]interface{}{"user_id": user.ID})
	return nil
}

// SeedSuperuser creates the configured superuser when no account has its
// username. It reports whether a user was created.
func (m *Manager) SeedSuperuser(ctx context.Context, su config.SuperuserConfig) (*User, bool, error) {
	existing, err := m.repository.GetByUsername(ctx, su.Username)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	user, err := m.CreateUser(ctx, CreateUserParams{
		Username: su.Username,
		Password: su.Password,
		FullName: su.FullName,
		Email:    StringPtr(su.Email),
		IsAdmin:  true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("seed superuser: %w", err)
	}
	return user, true, nil
}

// HealthCheck pings the database and the token store
func (m *Manager) HealthCheck(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	return m.store.Ping(ctx)
}

// Close releases the mailer and token store
func (m *Manager) Close() error {
	return errors.Join(m.mailer.Close(), m.store.Close())
}

// log returns the manager logger tagged with the request and actor IDs
func (m *Manager) log(ctx context.Context) interfaces.Logger {
	fields := types.GetRequestContext(ctx).Fields()
	if len(fields) == 0 {
		return m.logger
	}
	return m.logger.WithFields(fields)
}

// GetConfig returns the manager configuration
func (m *Manager) GetConfig() *Config {
	return m.config
}

func nullable(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

var validate = validator.New()

// validateStruct reports every failed constraint as a validation error
func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewInvalidInputError(err.Error())
	}

	list := apperrors.NewErrorList()
	for _, fe := range verrs {
		list.Add(apperrors.NewValidationError(fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())).
			WithDetail("field", fe.Field()).
			WithDetail("tag", fe.Tag()))
	}
	return list.ToError()
}
