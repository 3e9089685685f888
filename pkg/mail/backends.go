package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nats-io/nats.go"

	apperrors "github.com/memtensor/usergrid/pkg/errors"
	"github.com/memtensor/usergrid/pkg/interfaces"
	"github.com/memtensor/usergrid/pkg/logger"
)

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	logger interfaces.Logger
}

// NewLogMailer creates a log backend
func NewLogMailer(l interfaces.Logger) *LogMailer {
	if l == nil {
		l = logger.NewLogger()
	}
	return &LogMailer{logger: l}
}

func (m *LogMailer) Name() string { return "log" }

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m.logger.Info("Mail not delivered, log backend", map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
		"text":    msg.Text,
	})
	return nil
}

func (m *LogMailer) Close() error { return nil }

// Publisher is the part of a NATS connection the mailer uses
type Publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
}

// NATSMailer publishes messages as JSON for a mail worker to deliver
type NATSMailer struct {
	pub     Publisher
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

// NewNATSMailer publishes through pub
func NewNATSMailer(pub Publisher, subject string, timeout time.Duration) *NATSMailer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSMailer{pub: pub, subject: subject, timeout: timeout}
}

// DialNATS connects to url and returns a mailer owning the connection
func DialNATS(url, subject string, timeout time.Duration) (*NATSMailer, error) {
	conn, err := nats.Connect(url,
		nats.Name("usergrid-mailer"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(timeout),
	)
	if err != nil {
		return nil, apperrors.NewConnectionFailedError(url, err)
	}
	m := NewNATSMailer(conn, subject, timeout)
	m.conn = conn
	return m, nil
}

func (m *NATSMailer) Name() string { return "nats" }

func (m *NATSMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return apperrors.NewMailError("failed to encode message", err)
	}
	if err := m.pub.Publish(m.subject, data); err != nil {
		return apperrors.NewMailError("failed to publish message", err)
	}

	timeout := m.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := m.pub.FlushTimeout(timeout); err != nil {
		return apperrors.NewMailError("failed to flush message", err)
	}
	return nil
}

func (m *NATSMailer) Close() error {
	if m.conn != nil {
		return m.conn.Drain()
	}
	return nil
}

// HTTPMailer posts messages to a relay service
type HTTPMailer struct {
	client *resty.Client
}

// NewHTTPMailer creates a relay client. token is sent as a bearer token when set.
func NewHTTPMailer(url, token string, timeout time.Duration) *HTTPMailer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New()
	client.SetBaseURL(url)
	client.SetTimeout(timeout)
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("User-Agent", "usergrid/1.0")
	if token != "" {
		client.SetAuthToken(token)
	}
	return &HTTPMailer{client: client}
}

func (m *HTTPMailer) Name() string { return "http" }

// Send posts msg. Client errors from the relay are not retried.
func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post("")
	if err != nil {
		return apperrors.NewMailError("relay request failed", err)
	}
	if resp.IsError() {
		cause := fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.String())
		mailErr := apperrors.NewMailError("relay rejected message", cause).WithDetail("status", resp.StatusCode())
		if resp.StatusCode() < 500 && resp.StatusCode() != 429 {
			return permanent(mailErr)
		}
		return mailErr
	}
	return nil
}

func (m *HTTPMailer) Close() error { return nil }
