package storage

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"StudioFM/core/assetcache"
)

var _ assetcache.Storage = (*MinioCacheStorage)(nil)

func TestObjectKeyIsFlat(t *testing.T) {
	keys := []string{"/index.html", "/api/tracks?page=2&sort=new", "/assets/a/b/c.js"}
	for _, k := range keys {
		got := objectKey("caches/site-v1/", k)
		rest := strings.TrimPrefix(got, "caches/site-v1/")
		if strings.ContainsAny(rest, "/?") {
			t.Fatalf("%s: object key %q is not flat", k, got)
		}
		raw, err := base64.RawURLEncoding.DecodeString(rest)
		if err != nil || string(raw) != k {
			t.Fatalf("%s: key does not round-trip: %q %v", k, raw, err)
		}
	}
}

func TestOpenRejectsBadNames(t *testing.T) {
	s := NewMinioCacheStorage(nil, "bucket")
	for _, name := range []string{"", "a/b"} {
		if _, err := s.Open(context.Background(), name); err == nil {
			t.Fatalf("expected error for %q", name)
		}
	}
	if _, err := s.Open(context.Background(), "site-v1"); err != nil {
		t.Fatalf("open: %v", err)
	}
}

func TestFormatSize(t *testing.T) {
	cases := map[int64]string{
		512:             "512 B",
		2048:            "2.0 KB",
		5 * 1024 * 1024: "5.0 MB",
	}
	for in, want := range cases {
		if got := FormatSize(in); got != want {
			t.Fatalf("FormatSize(%d) = %s, want %s", in, got, want)
		}
	}
}
