package store

import (
	"context"
	"testing"
	"time"

	"vision-server-go/internal/domain/auth/model"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRedisStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	store, err := NewRedis(Config{
		TTL: time.Second,
		Redis: &RedisConfig{
			Addr: mr.Addr(),
		},
	})
	if err != nil {
		t.Fatalf("NewRedis error: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close(ctx)
	})

	info := model.ClientInfo{
		ClientID: "redis-client",
		Username: "user",
		Password: "pass",
		DeviceID: "device-redis",
	}
	if err := store.Store(ctx, info); err != nil {
		t.Fatalf("Store error: %v", err)
	}

	got, err := store.Get(ctx, info.ClientID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.ClientID != info.ClientID {
		t.Fatalf("unexpected client: %+v", got)
	}

	_, ok, err := store.Validate(ctx, info.ClientID, info.Username, info.Password)
	if err != nil {
		t.Fatalf("Validate error: %v", err)
	}
	if !ok {
		t.Fatalf("expected validation success")
	}

	list, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(list) != 1 || list[0] != info.ClientID {
		t.Fatalf("unexpected list: %v", list)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats["total"].(int) != 1 {
		t.Fatalf("expected 1 stored client, got %v", stats["total"])
	}
	if stats["devices"].(int) != 1 {
		t.Fatalf("expected 1 distinct device, got %v", stats["devices"])
	}

	_, ok, err = store.Validate(ctx, info.ClientID, info.Username, "wrong")
	if err != nil {
		t.Fatalf("Validate wrong password error: %v", err)
	}
	if ok {
		t.Fatalf("expected validation failure for wrong password")
	}
	if _, ok, err := store.Validate(ctx, "ghost-client", "user", "pass"); err != nil || ok {
		t.Fatalf("expected unknown client to fail validation cleanly, ok=%v err=%v", ok, err)
	}

	if err := store.Remove(ctx, info.ClientID); err != nil {
		t.Fatalf("Remove error: %v", err)
	}
	if _, err := store.Get(ctx, info.ClientID); err == nil {
		t.Fatalf("expected missing client after removal")
	}
}
