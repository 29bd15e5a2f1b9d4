package cache

import (
	"context"
	"testing"
	"time"

	"StudioFM/core/session"
	"StudioFM/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

var _ session.Store = (*SessionStore)(nil)

func TestSessionStoreRoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	if data, err := store.Load(ctx, "abc"); err != nil || data != nil {
		t.Fatalf("expected empty load, got %q err %v", data, err)
	}
	if err := store.Save(ctx, "abc", []byte(`[{"id":"1"}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, _ := mr.Get("session:abc:playlist"); got != `[{"id":"1"}]` {
		t.Fatalf("unexpected stored value %q", got)
	}
	if ttl := mr.TTL("session:abc:playlist"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}

	if err := store.Delete(ctx, "abc"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists("session:abc:playlist") {
		t.Fatal("expected key deleted")
	}
}

func TestSessionStoreExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewSessionStore(client, 0)
	ctx := context.Background()

	store.Save(ctx, "abc", []byte(`[]`))
	mr.FastForward(DefaultSessionTTL + time.Second)
	if data, err := store.Load(ctx, "abc"); err != nil || data != nil {
		t.Fatalf("expected expired key, got %q err %v", data, err)
	}
}

func TestSessionStoreBacksPlaylist(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewSessionStore(client, time.Hour)
	ctx := context.Background()

	p := session.Open(ctx, store, "tab-1")
	p.Add(ctx, model.Track{ID: "a", Title: "A", AudioURL: "https://cdn.example.com/a.mp3"})
	p.Add(ctx, model.Track{ID: "a", Title: "A", AudioURL: "https://cdn.example.com/a.mp3"})

	if reopened := session.Open(ctx, store, "tab-1"); reopened.Len() != 1 {
		t.Fatalf("expected 1 hydrated track, got %d", reopened.Len())
	}

	mr.Set(SessionPlaylistKey("tab-1"), "}{")
	if reopened := session.Open(ctx, store, "tab-1"); reopened.Len() != 0 {
		t.Fatal("corrupt data should hydrate as empty")
	}
}

func TestSessionStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewSessionStore(client, time.Hour)
	mr.Close()

	if _, err := store.Load(context.Background(), "abc"); err == nil {
		t.Fatal("expected error when redis is down")
	}
	// 存储不可用时歌单仍可打开
	if p := session.Open(context.Background(), store, "abc"); p.Len() != 0 {
		t.Fatal("expected empty playlist")
	}
}

func TestCheckRedis(t *testing.T) {
	_, client := newTestRedis(t)
	if err := CheckRedis(context.Background(), client); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := CheckRedis(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil client")
	}
}
