package users

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/memtensor/usergrid/pkg/config"
	"github.com/memtensor/usergrid/pkg/database"
	"github.com/memtensor/usergrid/pkg/logger"
	"github.com/memtensor/usergrid/pkg/mail"
)

type capturingMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (m *capturingMailer) Name() string { return "capture" }
func (m *capturingMailer) Close() error { return nil }

func (m *capturingMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *capturingMailer) last() mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

func testConfig() *Config {
	return &Config{
		SecretKey:         "test-secret-key-0123456789",
		Issuer:            "usergrid-test",
		AccessTokenExpire: time.Hour,
		ResetTokenExpire:  48 * time.Hour,
		PasswordPolicy:    PasswordPolicy{MinLength: 8},
		MailFrom:          "noreply@example.com",
		ProjectName:       "Usergrid",
		ResetURL:          "https://app.example.com/reset-password",
		DefaultLimit:      10,
		MaxLimit:          50,
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver:          "sqlite",
		DSN:             ":memory:",
		ConnectAttempts: 1,
		LogLevel:        "silent",
	}, logger.NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp(db, "sqlite"))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func setupTestManager(t *testing.T, opts ...Option) (*Manager, *capturingMailer) {
	t.Helper()
	mailer := &capturingMailer{}
	opts = append([]Option{WithLogger(logger.NewTestLogger()), WithMailer(mailer)}, opts...)

	m, err := NewManager(setupTestDB(t), testConfig(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, mailer
}

func createTestUser(t *testing.T, m *Manager, username, email string) *User {
	t.Helper()
	user, err := m.CreateUser(context.Background(), CreateUserParams{
		Username: username,
		Password: "password123",
		FullName: "Test " + username,
		Email:    StringPtr(email),
	})
	require.NoError(t, err)
	return user
}

func intPtr(v int) *int { return &v }
