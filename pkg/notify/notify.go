// Package notify announces finished merge runs to other services.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/nats-io/nats.go"

	"github.com/mpapenbr/telemetry-merger/log"
	"github.com/mpapenbr/telemetry-merger/pkg/model"
)

const (
	DefaultSubject = "tmg.runs.completed"
	HeaderRunID    = "Tmg-Run-Id"
)

type (
	TableSummary struct {
		Name string `json:"name"`
		Rows int    `json:"rows"`
	}
	// Summary describes a persisted merge run
	Summary struct {
		RunID    uuid.UUID      `json:"runId"`
		Created  time.Time      `json:"created"`
		Format   string         `json:"format"`
		Target   string         `json:"target"`
		Sessions []string       `json:"sessions"`
		Missing  []string       `json:"missing,omitempty"`
		Tables   []TableSummary `json:"tables"`
		Failures int            `json:"failures"`
		Warnings int            `json:"warnings"`
	}
	Publisher interface {
		Publish(ctx context.Context, s *Summary) error
		Close() error
	}
)

func SessionNames(keys []model.SessionKey) []string {
	ret := make([]string, len(keys))
	for i, k := range keys {
		ret[i] = k.String()
	}
	return ret
}

type nopPublisher struct{}

// Nop returns a publisher that drops all summaries
func Nop() Publisher {
	return nopPublisher{}
}

func (nopPublisher) Publish(context.Context, *Summary) error { return nil }
func (nopPublisher) Close() error                            { return nil }

type (
	msgConn interface {
		PublishMsg(m *nats.Msg) error
		FlushWithContext(ctx context.Context) error
	}
	NatsPublisher struct {
		conn    msgConn
		close   func()
		subject string
		l       *log.Logger
	}
	Option func(*NatsPublisher)
)

func WithSubject(subject string) Option {
	return func(p *NatsPublisher) {
		p.subject = subject
	}
}

func WithLogger(l *log.Logger) Option {
	return func(p *NatsPublisher) {
		p.l = l
	}
}

// Connect dials the NATS server at url
func Connect(url string, opts ...Option) (*NatsPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("telemetry-merger"))
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	ret := NewNatsPublisher(nc, opts...)
	ret.close = nc.Close
	return ret, nil
}

// NewNatsPublisher uses an existing connection. Close does not close conn.
func NewNatsPublisher(conn *nats.Conn, opts ...Option) *NatsPublisher {
	return newNatsPublisher(conn, opts...)
}

func newNatsPublisher(conn msgConn, opts ...Option) *NatsPublisher {
	ret := &NatsPublisher{
		conn:    conn,
		subject: DefaultSubject,
		l:       log.Default().Named("notify"),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (p *NatsPublisher) Publish(ctx context.Context, s *Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(p.subject)
	msg.Data = data
	msg.Header.Set(HeaderRunID, s.RunID.String())
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	p.l.Info("run published",
		log.String("subject", p.subject),
		log.Stringer("run", s.RunID))
	return nil
}

func (p *NatsPublisher) Close() error {
	if p.close != nil {
		p.close()
	}
	return nil
}
