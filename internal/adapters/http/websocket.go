package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/loadgen/internal/adapters/nats"
	"github.com/samirrijal/loadgen/internal/pkg/metrics"
)

// wsMessage is sent from client to subscribe/unsubscribe to a run.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	RunID   string `json:"run_id"`  // run to follow, "" = all runs
	Channel string `json:"channel"` // "results" | "summaries" (default: results)
}

// wsSubject maps a client message to the NATS subject it follows.
func wsSubject(m wsMessage) (string, bool) {
	switch m.Channel {
	case "", "results":
		if m.RunID == "" {
			return "loadtest.results.>", true
		}
		return natsadapter.ResultSubject(m.RunID), true
	case "summaries":
		if m.RunID == "" {
			return "loadtest.runs.*.summary", true
		}
		return natsadapter.SummarySubject(m.RunID), true
	}
	return "", false
}

// WebSocketHandler returns a handler that relays request results and run
// summaries from NATS to connected clients. Nothing is sent until the client
// subscribes, e.g. {"action":"subscribe","run_id":"<id>","channel":"results"}.
// A run_id query parameter on the upgrade request subscribes to that run's
// results immediately.
func WebSocketHandler(nc *nats.Conn) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		remoteAddr := c.RemoteAddr().String()
		slog.Info("ws client connected", "remote", remoteAddr)

		var mu sync.Mutex
		subs := make(map[string]*nats.Subscription) // subject -> subscription

		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subscribe := func(subject string) error {
			s, err := nc.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(json.RawMessage(msg.Data))
			})
			if err != nil {
				return err
			}
			subs[subject] = s
			return nil
		}

		if runID := c.Query("run_id"); runID != "" {
			if err := subscribe(natsadapter.ResultSubject(runID)); err != nil {
				slog.Warn("ws subscribe failed", "run_id", runID, "error", err)
				return
			}
		}

		// Keep-alive ping
		done := make(chan struct{})
		go func() {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					mu.Lock()
					err := c.WriteMessage(websocket.PingMessage, nil)
					mu.Unlock()
					if err != nil {
						return
					}
				case <-done:
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(msg, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}

			subject, ok := wsSubject(m)
			if !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[subject]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "subject": subject})
					continue
				}
				if err := subscribe(subject); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "subject": subject})

			case "unsubscribe":
				if s, exists := subs[subject]; exists {
					_ = s.Unsubscribe()
					delete(subs, subject)
					_ = writeJSON(map[string]string{"status": "unsubscribed", "subject": subject})
				} else {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + subject})
				}

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		slog.Info("ws client disconnected", "remote", remoteAddr)
	}
}
