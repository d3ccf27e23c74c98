package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"trade-autopilot/internal/storage"
)

func TestDedupIndexPutAndLast(t *testing.T) {
	d := NewDedupIndex()
	ctx := context.Background()
	now := time.Now()

	if _, _, err := d.Last(ctx, "AAPL|trend_follow|BUY"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Last empty = %v; want ErrNotFound", err)
	}

	if err := d.Put(ctx, "AAPL|trend_follow|BUY", now, 70, time.Hour); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	at, conf, err := d.Last(ctx, "AAPL|trend_follow|BUY")
	if err != nil {
		t.Fatalf("Last failed: %v", err)
	}
	if !at.Equal(now) || conf != 70 {
		t.Fatalf("Last = %v, %d; want %v, 70", at, conf, now)
	}
}

func TestDedupIndexExpiry(t *testing.T) {
	d := NewDedupIndex()
	ctx := context.Background()

	current := time.Unix(1700000000, 0)
	d.now = func() time.Time { return current }

	_ = d.Put(ctx, "k", current, 60, 10*time.Minute)
	current = current.Add(11 * time.Minute)

	if _, _, err := d.Last(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Last after expiry = %v; want ErrNotFound", err)
	}
}

func TestDedupIndexValidation(t *testing.T) {
	d := NewDedupIndex()
	ctx := context.Background()

	if err := d.Put(ctx, "", time.Now(), 1, time.Minute); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Put empty key = %v; want ErrInvalidInput", err)
	}
	if err := d.Put(ctx, "k", time.Now(), 1, 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Put zero ttl = %v; want ErrInvalidInput", err)
	}
}
