package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/loadgen/internal/core/domain"
	"github.com/samirrijal/loadgen/internal/core/ports"
)

var _ ports.ResultSubscriber = (*Subscriber)(nil)

// Subscriber implements ports.ResultSubscriber using NATS JetStream.
type Subscriber struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	subs []*nats.Subscription
}

// NewSubscriber creates a subscriber with its own NATS connection.
func NewSubscriber(url string) (*Subscriber, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}
	return &Subscriber{conn: conn, js: js}, nil
}

// SubscribeSummaries delivers every run summary to handler. A handler error
// naks the message so it is redelivered, up to three attempts.
func (s *Subscriber) SubscribeSummaries(ctx context.Context, handler func(ctx context.Context, summary *domain.RunSummary) error) error {
	sub, err := s.js.Subscribe(runsPrefix+"*.summary", func(msg *nats.Msg) {
		var summary domain.RunSummary
		if err := json.Unmarshal(msg.Data, &summary); err != nil {
			slog.Warn("dropping malformed summary", "subject", msg.Subject, "error", err)
			_ = msg.Term()
			return
		}
		if err := handler(ctx, &summary); err != nil {
			slog.Warn("summary handler failed", "run_id", summary.RunID, "error", err)
			_ = msg.Nak()
			return
		}
		_ = msg.Ack()
	},
		nats.Durable("summary-recorder"),
		nats.ManualAck(),
		nats.MaxDeliver(3),
		nats.DeliverNew(),
	)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, sub)
	return nil
}

// Close unsubscribes and drains.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		_ = sub.Unsubscribe()
	}
	_ = s.conn.Drain()
}
