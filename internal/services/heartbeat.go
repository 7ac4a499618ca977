package services

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// Heartbeat periodically publishes service metrics to a NATS topic so an
// external monitor can watch the QA service. Disabled when no connection
// is configured.
type Heartbeat struct {
	conn    *nats.Conn
	topic   string
	service string
	metrics *Metrics

	stop chan struct{}
}

func NewHeartbeat(conn *nats.Conn, topic, service string, metrics *Metrics) *Heartbeat {
	return &Heartbeat{
		conn:    conn,
		topic:   topic,
		service: service,
		metrics: metrics,
		stop:    make(chan struct{}),
	}
}

// Start begins publishing every interval. Returns immediately when the
// heartbeat has no NATS connection.
func (h *Heartbeat) Start(interval time.Duration) {
	if h.conn == nil || h.topic == "" {
		slog.Info("Metrics heartbeat disabled, no NATS connection")
		return
	}
	go h.loop(interval)
}

func (h *Heartbeat) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
}

func (h *Heartbeat) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			h.publish()
		case <-h.stop:
			return
		}
	}
}

func (h *Heartbeat) publish() {
	payload := map[string]interface{}{
		"service":   h.service,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"metrics":   h.metrics.Snapshot(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := h.conn.Publish(h.topic, data); err != nil {
		slog.Warn("Metrics heartbeat publish failed", "error", err)
	}
}
