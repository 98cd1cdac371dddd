package cache

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"xiaoer/internal/infrastructure/persistence/sqlite/model"
)

func setupSQLiteCache(t *testing.T) *SQLiteCache {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.AutoMigrate(&model.EndpointKV{}); err != nil {
		t.Fatalf("auto migrate endpoint_kv: %v", err)
	}

	return NewSQLiteCache(db)
}

func TestSQLiteCacheSetGetDelete(t *testing.T) {
	cache := setupSQLiteCache(t)
	ctx := context.Background()

	if err := cache.Set(ctx, "ep:orders", `{"v":1}`, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	value, found, err := cache.Get(ctx, "ep:orders")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || value != `{"v":1}` {
		t.Fatalf("get returned found=%v value=%q", found, value)
	}

	deleted, err := cache.Delete(ctx, "ep:orders")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatal("delete reported nothing removed")
	}

	deleted, err = cache.Delete(ctx, "ep:orders")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatal("second delete reported a removed row")
	}

	if _, found, err = cache.Get(ctx, "ep:orders"); err != nil || found {
		t.Fatalf("get after delete: found=%v err=%v", found, err)
	}
}

func TestSQLiteCacheExpiryIsAdvisory(t *testing.T) {
	cache := setupSQLiteCache(t)
	ctx := context.Background()

	base := time.Now()
	cache.now = func() time.Time { return base }

	if err := cache.Set(ctx, "ep:mail", `{"v":"old"}`, 30*time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	cache.now = func() time.Time { return base.Add(time.Minute) }

	if _, found, err := cache.Get(ctx, "ep:mail"); err != nil {
		t.Fatalf("get: %v", err)
	} else if found {
		t.Fatal("expired entry served as fresh")
	}

	value, found, err := cache.GetStale(ctx, "ep:mail")
	if err != nil {
		t.Fatalf("get stale: %v", err)
	}
	if !found || value != `{"v":"old"}` {
		t.Fatalf("stale read returned found=%v value=%q", found, value)
	}
}

func TestSQLiteCacheOverwriteRefreshesExpiry(t *testing.T) {
	cache := setupSQLiteCache(t)
	ctx := context.Background()

	base := time.Now()
	cache.now = func() time.Time { return base }
	if err := cache.Set(ctx, "ep:cal", `{"v":1}`, time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}

	cache.now = func() time.Time { return base.Add(time.Minute) }
	if err := cache.Set(ctx, "ep:cal", `{"v":2}`, time.Minute); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	value, found, err := cache.Get(ctx, "ep:cal")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !found || value != `{"v":2}` {
		t.Fatalf("get after overwrite returned found=%v value=%q", found, value)
	}
}

func TestSQLiteCacheZeroTTLNeverExpires(t *testing.T) {
	cache := setupSQLiteCache(t)
	ctx := context.Background()

	base := time.Now()
	cache.now = func() time.Time { return base }
	if err := cache.Set(ctx, "ep:pinned", `{"v":true}`, 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	cache.now = func() time.Time { return base.Add(24 * time.Hour) }
	if _, found, err := cache.Get(ctx, "ep:pinned"); err != nil || !found {
		t.Fatalf("pinned entry lost: found=%v err=%v", found, err)
	}
}

func TestSQLiteCacheKeys(t *testing.T) {
	cache := setupSQLiteCache(t)
	ctx := context.Background()

	for _, key := range []string{"ep:a", "ep:b", "ep:c", "other:x"} {
		if err := cache.Set(ctx, key, "{}", time.Minute); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	keys, err := cache.Keys(ctx, "ep:", 10)
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %v", keys)
	}
	for i, want := range []string{"ep:a", "ep:b", "ep:c"} {
		if keys[i] != want {
			t.Fatalf("keys[%d] = %q, want %q", i, keys[i], want)
		}
	}

	limited, err := cache.Keys(ctx, "ep:", 2)
	if err != nil {
		t.Fatalf("keys limited: %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("expected 2 keys, got %v", limited)
	}
}
