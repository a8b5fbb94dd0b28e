// Package events publishes alert lifecycle changes to a Redis stream so
// other processes can follow them.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"carelink/internal/util"
)

const (
	DefaultStream = "carelink:alerts"
	defaultMaxLen = 10000
)

// AlertEvent records one lifecycle step of an alert.
type AlertEvent struct {
	ID        string    `json:"id"`
	AlertID   string    `json:"alertId"`
	PatientID string    `json:"patientId"`
	NurseID   string    `json:"nurseId,omitempty"`
	Event     string    `json:"event"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to"`
	ActorID   string    `json:"actorId"`
	ActorRole string    `json:"actorRole"`
	At        time.Time `json:"at"`
}

// Publisher delivers lifecycle events. Publishing is best effort: the
// stored alert is the source of truth.
type Publisher interface {
	Publish(ctx context.Context, ev AlertEvent) error
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AlertEvent) error { return nil }

type RedisStreamConfig struct {
	Stream string
	MaxLen int64
}

// RedisStreamPublisher appends events with XADD, trimming the stream to an
// approximate maximum length.
type RedisStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStreamPublisher(client *redis.Client, cfg RedisStreamConfig) (*RedisStreamPublisher, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	stream := strings.TrimSpace(cfg.Stream)
	if stream == "" {
		stream = DefaultStream
	}
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &RedisStreamPublisher{client: client, stream: stream, maxLen: maxLen}, nil
}

func (p *RedisStreamPublisher) Publish(ctx context.Context, ev AlertEvent) error {
	if ev.ID == "" {
		ev.ID = util.NewID()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"event_id": ev.ID,
			"alert_id": ev.AlertID,
			"event":    ev.Event,
			"payload":  string(payload),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return nil
}

// Decode parses a stream entry written by Publish.
func Decode(msg redis.XMessage) (AlertEvent, error) {
	raw, _ := msg.Values["payload"].(string)
	if raw == "" {
		return AlertEvent{}, fmt.Errorf("stream entry %s has no payload", msg.ID)
	}
	var ev AlertEvent
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return AlertEvent{}, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
	}
	return ev, nil
}
