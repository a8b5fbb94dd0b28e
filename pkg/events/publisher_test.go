package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newPublisher(t *testing.T) (*RedisStreamPublisher, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	p, err := NewRedisStreamPublisher(client, RedisStreamConfig{Stream: "test:alerts"})
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	return p, client, srv
}

func TestRedisStreamPublisherAppendsEntry(t *testing.T) {
	p, client, _ := newPublisher(t)
	ctx := context.Background()
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	err := p.Publish(ctx, AlertEvent{
		AlertID:   "a1",
		PatientID: "p1",
		NurseID:   "n1",
		Event:     "acknowledge",
		From:      "PENDING",
		To:        "ACKNOWLEDGED",
		ActorID:   "u-nurse",
		ActorRole: "NURSE",
		At:        at,
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	msgs, err := client.XRange(ctx, "test:alerts", "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one entry, got %d", len(msgs))
	}
	if msgs[0].Values["alert_id"] != "a1" || msgs[0].Values["event"] != "acknowledge" {
		t.Fatalf("unexpected entry fields: %+v", msgs[0].Values)
	}
	ev, err := Decode(msgs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.ID == "" {
		t.Fatal("expected generated event id")
	}
	if ev.To != "ACKNOWLEDGED" || ev.From != "PENDING" || !ev.At.Equal(at) {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestRedisStreamPublisherReportsOutage(t *testing.T) {
	p, _, srv := newPublisher(t)
	srv.Close()
	if err := p.Publish(context.Background(), AlertEvent{AlertID: "a1", Event: "create", To: "PENDING"}); err == nil {
		t.Fatal("expected error when redis is down")
	}
}

func TestDecodeRejectsEntryWithoutPayload(t *testing.T) {
	if _, err := Decode(redis.XMessage{ID: "1-0", Values: map[string]any{"alert_id": "a1"}}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRedisStreamPublisherRequiresClient(t *testing.T) {
	if _, err := NewRedisStreamPublisher(nil, RedisStreamConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
