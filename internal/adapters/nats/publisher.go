package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/loadgen/internal/core/domain"
)

const (
	ResultsStream = "LOADTEST_RESULTS"
	RunsStream    = "LOADTEST_RUNS"

	resultsPrefix = "loadtest.results."
	runsPrefix    = "loadtest.runs."
)

// ResultSubject is the subject carrying per-request results of one run.
func ResultSubject(runID string) string { return resultsPrefix + runID }

// SummarySubject is the subject carrying the final summary of one run.
func SummarySubject(runID string) string { return runsPrefix + runID + ".summary" }

// Streams returns the JetStream streams the publisher expects to exist.
func Streams() []nats.StreamConfig {
	return []nats.StreamConfig{
		{
			Name:      ResultsStream,
			Subjects:  []string{resultsPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    1 * time.Hour,
			Storage:   nats.FileStorage,
		},
		{
			Name:      RunsStream,
			Subjects:  []string{runsPrefix + ">"},
			Retention: nats.LimitsPolicy,
			MaxAge:    7 * 24 * time.Hour,
			Storage:   nats.FileStorage,
		},
	}
}

// Publisher implements ports.ResultPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and enables JetStream.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream(nats.PublishAsyncMaxPending(4096))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	for _, cfg := range Streams() {
		if _, err := js.AddStream(&cfg); err != nil {
			// Stream may already exist, try update
			if _, err := js.UpdateStream(&cfg); err != nil {
				conn.Close()
				return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
			}
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishResult publishes without waiting for the ack; results are high volume.
func (p *Publisher) PublishResult(_ context.Context, result *domain.RequestResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = p.js.PublishAsync(ResultSubject(result.RunID), data)
	return err
}

func (p *Publisher) PublishSummary(ctx context.Context, summary *domain.RunSummary) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SummarySubject(summary.RunID), data, nats.Context(ctx))
	return err
}

// Close waits briefly for outstanding async publishes, then drains the connection.
func (p *Publisher) Close() {
	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(5 * time.Second):
	}
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("loadgen"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
