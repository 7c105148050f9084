// Package natspub publishes reply events to NATS so the messaging gateway
// can deliver them.
package natspub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/vidasmart/coachgw/internal/events"
)

// Config configures the NATS connection.
type Config struct {
	URL           string        `koanf:"url"`
	SubjectPrefix string        `koanf:"subject_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

func DefaultConfig() Config {
	return Config{
		SubjectPrefix: "coach",
		MaxReconnects: 5,
		ReconnectWait: time.Second,
	}
}

// Conn is the subset of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// Publisher sends every reply to <prefix>.reply and stage changes to
// <prefix>.stage.<stage> as well.
type Publisher struct {
	conn   Conn
	prefix string
}

// Connect dials NATS and returns a publisher on that connection.
func Connect(cfg Config) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("coachgw"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return New(nc, cfg.SubjectPrefix), nil
}

// New wraps an existing connection.
func New(conn Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = DefaultConfig().SubjectPrefix
	}
	return &Publisher{conn: conn, prefix: prefix}
}

// ReplySubject is where every reply event goes.
func (p *Publisher) ReplySubject() string {
	return p.prefix + ".reply"
}

// StageSubject is where stage changes to st go.
func (p *Publisher) StageSubject(st string) string {
	return p.prefix + ".stage." + st
}

// Publish marshals ev and sends it. NATS publish does not take a context,
// so cancellation is only checked up front.
func (p *Publisher) Publish(ctx context.Context, ev *events.Reply) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before publish: %w", err)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal reply event: %w", err)
	}
	if err := p.conn.Publish(p.ReplySubject(), data); err != nil {
		return fmt.Errorf("publish reply event: %w", err)
	}
	if ev.StageChanged() {
		if err := p.conn.Publish(p.StageSubject(string(ev.Stage)), data); err != nil {
			return fmt.Errorf("publish stage event: %w", err)
		}
	}
	return nil
}

// Close drains the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}
