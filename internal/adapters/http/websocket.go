package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/destialarm/internal/adapters/nats"
	"github.com/samirrijal/destialarm/internal/pkg/metrics"
)

// wsMessage is sent by clients to change their subscriptions.
type wsMessage struct {
	Action  string `json:"action"`  // "subscribe" | "unsubscribe"
	Channel string `json:"channel"` // "status" | "alerts" | "device"
}

// wsEnvelope tags every relayed message with its channel.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// channelSubject maps a client channel onto a NATS subject.
func channelSubject(channel string) (string, bool) {
	switch channel {
	case "status":
		return natsadapter.SubjectStatus, true
	case "alerts":
		return natsadapter.SubjectAlerts + ".>", true
	case "device":
		return "destialarm.device.>", true
	}
	return "", false
}

// WebSocketHandler relays navigator events from NATS to the client. Every
// client starts on the status channel and receives the current snapshot first.
// Clients send {"action":"subscribe","channel":"alerts"} to add channels.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		log := slog.With("remote", c.RemoteAddr().String())
		log.Debug("ws client connected")

		var mu sync.Mutex
		writeJSON := func(v interface{}) error {
			data, err := json.Marshal(v)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			return c.WriteMessage(websocket.TextMessage, data)
		}

		subs := make(map[string]*nats.Subscription) // channel -> subscription
		subscribe := func(channel string) error {
			subject, _ := channelSubject(channel)
			s, err := deps.NATS.Subscribe(subject, func(msg *nats.Msg) {
				_ = writeJSON(wsEnvelope{Channel: channel, Data: msg.Data})
			})
			if err != nil {
				return err
			}
			subs[channel] = s
			return nil
		}

		if deps.Navigator != nil {
			if snap, err := json.Marshal(deps.Navigator.Status()); err == nil {
				_ = writeJSON(wsEnvelope{Channel: "status", Data: snap})
			}
		}
		if deps.NATS != nil {
			if err := subscribe("status"); err != nil {
				log.Warn("ws default subscribe failed", "error", err)
			}
		}

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
			_, raw, err := c.ReadMessage()
			if err != nil {
				break
			}

			var m wsMessage
			if err := json.Unmarshal(raw, &m); err != nil {
				_ = writeJSON(map[string]string{"error": "invalid JSON"})
				continue
			}
			if _, ok := channelSubject(m.Channel); !ok {
				_ = writeJSON(map[string]string{"error": "unknown channel: " + m.Channel})
				continue
			}
			if deps.NATS == nil {
				_ = writeJSON(map[string]string{"error": "event relay not available"})
				continue
			}

			switch m.Action {
			case "subscribe":
				if _, exists := subs[m.Channel]; exists {
					_ = writeJSON(map[string]string{"status": "already subscribed", "channel": m.Channel})
					continue
				}
				if err := subscribe(m.Channel); err != nil {
					_ = writeJSON(map[string]string{"error": "subscribe failed: " + err.Error()})
					continue
				}
				_ = writeJSON(map[string]string{"status": "subscribed", "channel": m.Channel})

			case "unsubscribe":
				s, exists := subs[m.Channel]
				if !exists {
					_ = writeJSON(map[string]string{"error": "not subscribed to " + m.Channel})
					continue
				}
				_ = s.Unsubscribe()
				delete(subs, m.Channel)
				_ = writeJSON(map[string]string{"status": "unsubscribed", "channel": m.Channel})

			default:
				_ = writeJSON(map[string]string{"error": "unknown action: " + m.Action})
			}
		}

		close(done)
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
		log.Debug("ws client disconnected")
	}
}
