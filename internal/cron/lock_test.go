package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type memoryStore struct {
	data map[string]string
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = value.(string)
	return true, nil
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m.data[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func TestRedisLockIsExclusivePerKey(t *testing.T) {
	store := &memoryStore{data: map[string]string{}}
	locks := RedisLocks(store, func(job string) string { return "pf:lock:" + job }, time.Minute)
	ctx := context.Background()

	first, _ := locks("order-import")
	second, _ := locks("order-import")
	other, _ := locks("inventory-sync")

	if ok, err := first.Acquire(ctx); err != nil || !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if ok, _ := second.Acquire(ctx); ok {
		t.Fatalf("expected second acquire of the same job to fail")
	}
	if ok, _ := other.Acquire(ctx); !ok {
		t.Fatalf("expected a different job to lock independently")
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.data["pf:lock:order-import"]; !held {
		t.Fatalf("non-owner release must not drop the lock")
	}
	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := second.Acquire(ctx); !ok {
		t.Fatalf("expected lock to be free after owner release")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", 0); err == nil {
		t.Fatalf("expected missing client error")
	}
	if _, err := NewRedisLock(&memoryStore{}, "", 0); err == nil {
		t.Fatalf("expected missing key error")
	}
	lock, err := NewRedisLock(&memoryStore{}, "k", 0)
	if err != nil || lock.ttl != defaultLockTTL {
		t.Fatalf("expected default ttl, got %+v %v", lock, err)
	}
}
