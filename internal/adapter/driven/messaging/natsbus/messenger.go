package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Wyydra/yacall/internal/core/domain"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// Config holds NATS connection settings
type Config struct {
	URL             string
	CredentialsFile string
	ReconnectWait   time.Duration
	MaxReconnects   int
}

const flushTimeout = 2 * time.Second

type publisher interface {
	Publish(subject string, data []byte) error
	FlushWithContext(ctx context.Context) error
}

// Messenger publishes end-of-call notifications to <prefix>.<recipient>.calls.
type Messenger struct {
	conn   publisher
	prefix string
}

func Connect(cfg Config) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("yacall"),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Info().Msg("NATS connection closed")
		}),
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredentialsFile))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

func New(conn publisher, prefix string) *Messenger {
	if prefix == "" {
		prefix = "yacall"
	}
	return &Messenger{conn: conn, prefix: prefix}
}

// Send returns once the server has acknowledged the publish.
func (m *Messenger) Send(ctx context.Context, msg domain.Notification, recipient domain.UserID) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	subject := m.Subject(recipient)
	if err := m.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	// nats refuses to flush without a deadline
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := m.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush %s: %w", subject, err)
	}
	return nil
}

func (m *Messenger) Subject(recipient domain.UserID) string {
	token := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(recipient.String())
	return m.prefix + "." + token + ".calls"
}
