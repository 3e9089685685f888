package mail

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/interfaces"
	"github.com/memtensor/usergrid/pkg/logger"
	"github.com/memtensor/usergrid/pkg/types"
)

// RetryMailer retries transient send failures with exponential backoff
type RetryMailer struct {
	next       Mailer
	maxRetries uint64
	logger     interfaces.Logger
	newBackOff func() backoff.BackOff
}

// NewRetryMailer wraps next. maxRetries of zero sends once.
func NewRetryMailer(next Mailer, maxRetries uint64, l interfaces.Logger) *RetryMailer {
	if l == nil {
		l = logger.NewLogger()
	}
	return &RetryMailer{
		next:       next,
		maxRetries: maxRetries,
		logger:     l,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxElapsedTime = time.Minute
			return b
		},
	}
}

func (m *RetryMailer) Name() string { return m.next.Name() }

func (m *RetryMailer) Send(ctx context.Context, msg Message) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := m.next.Send(ctx, msg)
		if err == nil {
			return nil
		}
		if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Type == types.ErrorTypeValidation {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		m.logger.Warn("Mail send failed, retrying", map[string]interface{}{
			"backend": m.next.Name(),
			"attempt": attempt,
			"wait":    wait.String(),
			"error":   err.Error(),
		})
	}

	b := backoff.WithContext(backoff.WithMaxRetries(m.newBackOff(), m.maxRetries), ctx)
	if err := backoff.RetryNotify(operation, b, notify); err != nil {
		m.logger.Error("Mail send failed", err, map[string]interface{}{
			"backend":  m.next.Name(),
			"attempts": attempt,
			"to":       msg.To,
		})
		return err
	}
	return nil
}

func (m *RetryMailer) Close() error { return m.next.Close() }

func permanent(err error) error {
	return backoff.Permanent(err)
}
