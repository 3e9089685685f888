// Package mail delivers transactional email through a configurable backend.
package mail

import (
	"context"
	"fmt"

	"github.com/memtensor/usergrid/pkg/config"
	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/interfaces"
)

// Message is one outgoing email
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Mailer sends messages
type Mailer interface {
	Send(ctx context.Context, msg Message) error
	Name() string
	Close() error
}

// Validate checks the addressing fields
func (m Message) Validate() error {
	errs := apperrors.NewErrorList()
	if m.To == "" {
		errs.Add(apperrors.NewMissingFieldError("to"))
	}
	if m.Subject == "" {
		errs.Add(apperrors.NewMissingFieldError("subject"))
	}
	if m.HTML == "" && m.Text == "" {
		errs.Add(apperrors.NewMissingFieldError("body"))
	}
	return errs.ToError()
}

// New builds the configured backend wrapped in retries
func New(cfg config.MailConfig, logger interfaces.Logger) (Mailer, error) {
	var (
		backend Mailer
		err     error
	)

	switch cfg.Backend {
	case "", "log":
		backend = NewLogMailer(logger)
	case "nats":
		backend, err = DialNATS(cfg.NATSURL, cfg.NATSSubject, cfg.Timeout)
	case "http":
		backend = NewHTTPMailer(cfg.RelayURL, cfg.RelayToken, cfg.Timeout)
	default:
		return nil, apperrors.NewConfigInvalidError(fmt.Sprintf("unknown mail backend %q", cfg.Backend)).WithDetail("field", "mail.backend")
	}
	if err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("Mail backend ready", map[string]interface{}{"backend": backend.Name()})
	}
	return NewRetryMailer(backend, cfg.MaxRetries, logger), nil
}
