package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryTokenRevokerExpires(t *testing.T) {
	r := NewMemoryTokenRevoker()
	now := time.Now()
	r.now = func() time.Time { return now }
	ctx := context.Background()

	if err := r.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := r.IsRevoked(ctx, "jti-1"); !ok {
		t.Fatal("expected token to be revoked")
	}
	now = now.Add(2 * time.Minute)
	if ok, _ := r.IsRevoked(ctx, "jti-1"); ok {
		t.Fatal("expected revocation to lapse after ttl")
	}
}

func TestMemoryTokenRevokerIgnoresNonPositiveTTL(t *testing.T) {
	r := NewMemoryTokenRevoker()
	ctx := context.Background()
	if err := r.Revoke(ctx, "jti-1", 0); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if ok, _ := r.IsRevoked(ctx, "jti-1"); ok {
		t.Fatal("token with no remaining lifetime should not be stored")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedisTokenRevoker(client, "test:revoked")
	ctx := context.Background()

	if err := r.Revoke(ctx, "jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err := r.IsRevoked(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("expected revoked, got %v err=%v", ok, err)
	}
	if !mr.Exists("test:revoked:jti-1") {
		t.Fatal("expected prefixed key in redis")
	}

	mr.FastForward(2 * time.Minute)
	ok, err = r.IsRevoked(ctx, "jti-1")
	if err != nil || ok {
		t.Fatalf("expected expiry, got %v err=%v", ok, err)
	}
}

func TestRedisTokenRevokerSurfacesErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	r := NewRedisTokenRevoker(client, "")
	mr.Close()
	if _, err := r.IsRevoked(context.Background(), "jti-1"); err == nil {
		t.Fatal("expected error when redis is down")
	}
}
