//go:build integration

package stats_test

import (
	"context"
	"testing"

	"github.com/SxyzJsnx/ratelimit-go/internal/testharness/redistest"
	"github.com/SxyzJsnx/ratelimit-go/stats"
)

func TestRedisStore_Record_Integration(t *testing.T) {
	client := redistest.SetupRedisClient(t)
	defer client.Close()

	const prefix = "ratelimit:stats:integration"
	redistest.CleanupKeys(t, client, prefix)
	defer redistest.CleanupKeys(t, client, prefix)

	store := stats.NewRedisStore(client,
		stats.WithPrefix(prefix),
		stats.WithRedisTrackKeys(true),
	)
	ctx := context.Background()

	events := []stats.Event{
		{Key: "1.2.3.4", LimiterKey: "api", Allowed: true, Method: "GET", Path: "/limited"},
		{Key: "1.2.3.4", LimiterKey: "api", Allowed: true, Method: "GET", Path: "/limited"},
		{Key: "1.2.3.4", LimiterKey: "api", Allowed: false, Method: "GET", Path: "/limited"},
	}
	for _, ev := range events {
		if err := store.Record(ctx, ev); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	total, err := store.Total(ctx)
	if err != nil {
		t.Fatalf("Total failed: %v", err)
	}
	if total.Allowed != 2 || total.Denied != 1 {
		t.Errorf("Total = %+v, want {Allowed:2 Denied:1}", total)
	}

	fields, err := client.HGetAll(ctx, prefix+":key:1.2.3.4").Result()
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if fields["allowed"] != "2" || fields["denied"] != "1" {
		t.Errorf("per-key hash = %v, want allowed=2 denied=1", fields)
	}
}
