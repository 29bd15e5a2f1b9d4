package assetcache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// origin 模拟站点源站，down 为真时直接断开连接
type origin struct {
	*httptest.Server
	down  atomic.Bool
	mu    sync.Mutex
	hits  map[string]int
	files map[string]string
	posts []string
}

func newOrigin(t *testing.T, files map[string]string) *origin {
	t.Helper()
	o := &origin{hits: map[string]int{}, files: files}
	o.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if o.down.Load() {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		o.mu.Lock()
		o.hits[r.URL.RequestURI()]++
		body, ok := o.files[r.URL.Path]
		if r.Method == http.MethodPost {
			b, _ := io.ReadAll(r.Body)
			o.posts = append(o.posts, string(b))
		}
		o.mu.Unlock()

		if r.Method == http.MethodPost {
			w.WriteHeader(http.StatusCreated)
			return
		}
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, body)
	}))
	t.Cleanup(o.Close)
	return o
}

func (o *origin) count(uri string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[uri]
}

func (o *origin) set(path, body string) {
	o.mu.Lock()
	o.files[path] = body
	o.mu.Unlock()
}

func (o *origin) url(t *testing.T) *url.URL {
	u, err := url.Parse(o.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func siteFiles() map[string]string {
	return map[string]string{
		"/index.html":      "<html>shell</html>",
		"/assets/app.js":   "console.log('v1')",
		"/assets/app.css":  "body{}",
		"/api/tracks":      `[{"id":"1"}]`,
		"/about":           "<html>about</html>",
		"/images/logo.svg": "<svg/>",
	}
}

func manifest(version string, assets ...string) *Manifest {
	m, err := ParseManifest(strings.NewReader(fmt.Sprintf(`{"version":%q,"assets":[%s]}`, version, quoteAll(assets))))
	if err != nil {
		panic(err)
	}
	return m
}

func quoteAll(ss []string) string {
	q := make([]string, len(ss))
	for i, s := range ss {
		q[i] = fmt.Sprintf("%q", s)
	}
	return strings.Join(q, ",")
}

func get(t *testing.T, h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDeployServesAssetsCacheFirst(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")

	if err := rt.Deploy(context.Background(), manifest("v1", "/assets/app.js", "/assets/app.css")); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if rt.Active().Name() != "site-v1" {
		t.Fatalf("unexpected active cache %s", rt.Active().Name())
	}

	// 源站内容变化也不影响已缓存的构建产物
	o.set("/assets/app.js", "console.log('changed')")
	rec := get(t, rt, "/assets/app.js", nil)
	if rec.Body.String() != "console.log('v1')" || rec.Header().Get("X-Asset-Cache") != "HIT" {
		t.Fatalf("expected cached asset, got %q (%s)", rec.Body.String(), rec.Header().Get("X-Asset-Cache"))
	}
	if n := o.count("/assets/app.js"); n != 1 {
		t.Fatalf("expected only the install fetch, got %d", n)
	}
}

func TestInstallFailureKeepsPreviousGeneration(t *testing.T) {
	o := newOrigin(t, siteFiles())
	storage := NewMemoryStorage()
	rt := NewRuntime(storage, o.url(t), "site")
	ctx := context.Background()

	if err := rt.Deploy(ctx, manifest("v1", "/assets/app.js")); err != nil {
		t.Fatalf("deploy v1: %v", err)
	}
	if err := rt.Deploy(ctx, manifest("v2", "/assets/app.js", "/assets/missing.js")); err == nil {
		t.Fatal("expected install failure")
	}

	if rt.Active().Name() != "site-v1" {
		t.Fatalf("previous generation must stay active, got %s", rt.Active().Name())
	}
	names, _ := storage.Keys(ctx)
	if fmt.Sprint(names) != "[site-v1]" {
		t.Fatalf("partial cache must be removed, caches: %v", names)
	}
}

func TestActivationEvictsOldGenerations(t *testing.T) {
	o := newOrigin(t, siteFiles())
	storage := NewMemoryStorage()
	rt := NewRuntime(storage, o.url(t), "site")
	ctx := context.Background()

	rt.Deploy(ctx, manifest("v1", "/assets/app.js"))
	o.set("/assets/app.js", "console.log('v2')")
	if err := rt.Deploy(ctx, manifest("v2", "/assets/app.js")); err != nil {
		t.Fatalf("deploy v2: %v", err)
	}

	names, _ := storage.Keys(ctx)
	if fmt.Sprint(names) != "[site-v2]" {
		t.Fatalf("expected only v2 cache, got %v", names)
	}
	rec := get(t, rt, "/assets/app.js", nil)
	if rec.Body.String() != "console.log('v2')" {
		t.Fatalf("served stale generation: %q", rec.Body.String())
	}
}

func TestDeploySameVersionIsNoop(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")
	ctx := context.Background()
	rt.Deploy(ctx, manifest("v1", "/assets/app.js"))
	rt.Deploy(ctx, manifest("v1", "/assets/app.js"))
	if n := o.count("/assets/app.js"); n != 1 {
		t.Fatalf("expected single install, got %d fetches", n)
	}
}

func TestNavigationFallsBackToShell(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")
	rt.Deploy(context.Background(), manifest("v1"))

	nav := map[string]string{"Accept": "text/html,application/xhtml+xml"}
	if rec := get(t, rt, "/about", nav); rec.Body.String() != "<html>about</html>" {
		t.Fatalf("online navigation should hit network, got %q", rec.Body.String())
	}

	o.down.Store(true)
	rec := get(t, rt, "/music/some-track", map[string]string{"Sec-Fetch-Mode": "navigate"})
	if rec.Code != http.StatusOK || rec.Body.String() != "<html>shell</html>" {
		t.Fatalf("expected shell fallback, got %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Asset-Cache") != "FALLBACK" {
		t.Fatalf("unexpected cache marker %q", rec.Header().Get("X-Asset-Cache"))
	}
}

func TestAPINetworkFirst(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")
	rt.Deploy(context.Background(), manifest("v1"))

	if rec := get(t, rt, "/api/tracks", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	o.set("/api/tracks", `[{"id":"2"}]`)
	if rec := get(t, rt, "/api/tracks", nil); rec.Body.String() != `[{"id":"2"}]` {
		t.Fatalf("network-first must prefer fresh data, got %q", rec.Body.String())
	}

	o.down.Store(true)
	rec := get(t, rt, "/api/tracks", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != `[{"id":"2"}]` {
		t.Fatalf("expected cached api response, got %d %q", rec.Code, rec.Body.String())
	}
	if rec := get(t, rt, "/api/tracks?page=2", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("uncached api request should fail, got %d", rec.Code)
	}
}

func TestNonOKResponsesAreNotCached(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")
	rt.Deploy(context.Background(), manifest("v1"))

	if rec := get(t, rt, "/api/nothing", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected upstream 404, got %d", rec.Code)
	}
	o.down.Store(true)
	if rec := get(t, rt, "/api/nothing", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("404 must not be cached, got %d", rec.Code)
	}
}

func TestOtherRequestsBestEffort(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")
	rt.Deploy(context.Background(), manifest("v1"))

	get(t, rt, "/images/logo.svg", nil)
	o.down.Store(true)
	if rec := get(t, rt, "/images/logo.svg", nil); rec.Body.String() != "<svg/>" {
		t.Fatalf("expected cached image, got %q", rec.Body.String())
	}
}

func TestNonGETPassesThrough(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")
	rt.Deploy(context.Background(), manifest("v1"))

	req := httptest.NewRequest(http.MethodPost, "/api/contact", strings.NewReader("hello"))
	rec := httptest.NewRecorder()
	rt.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated || rec.Header().Get("X-Asset-Cache") != "BYPASS" {
		t.Fatalf("expected passthrough 201, got %d %s", rec.Code, rec.Header().Get("X-Asset-Cache"))
	}
	if len(o.posts) != 1 || o.posts[0] != "hello" {
		t.Fatalf("request body not forwarded: %v", o.posts)
	}
}

func TestRuntimeWithoutDeployProxies(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")
	rec := get(t, rt, "/about", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Asset-Cache") != "BYPASS" {
		t.Fatalf("expected proxied response, got %d", rec.Code)
	}
	o.down.Store(true)
	if rec := get(t, rt, "/about", nil); rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestParseManifest(t *testing.T) {
	cases := []struct {
		name    string
		raw     string
		wantErr bool
		assets  string
		shell   string
	}{
		{"defaults shell", `{"version":"1","assets":["/a.js"]}`, false, "[/index.html /a.js]", "/index.html"},
		{"dedup", `{"version":"1","shell":"/app.html","assets":["/a.js","/app.html","/a.js"]}`, false, "[/app.html /a.js]", "/app.html"},
		{"no version", `{"assets":["/a.js"]}`, true, "", ""},
		{"relative path", `{"version":"1","assets":["a.js"]}`, true, "", ""},
		{"bad json", `{`, true, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, err := ParseManifest(strings.NewReader(tc.raw))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if fmt.Sprint(m.Assets) != tc.assets || m.Shell != tc.shell {
				t.Fatalf("got assets %v shell %s", m.Assets, m.Shell)
			}
		})
	}
}

func TestWatchRedeploysOnManifestChange(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")

	dir := t.TempDir()
	path := filepath.Join(dir, "asset-manifest.json")
	if err := os.WriteFile(path, []byte(`{"version":"v1","assets":["/assets/app.js"]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := rt.DeployFile(context.Background(), path); err != nil {
		t.Fatalf("deploy file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Watch(ctx, path) }()
	defer func() {
		cancel()
		<-done
	}()

	// 等待监听建立后再修改
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		os.WriteFile(path, []byte(`{"version":"v2","assets":["/assets/app.js"]}`), 0o644)
		time.Sleep(400 * time.Millisecond)
		if rt.Active().Name() == "site-v2" {
			return
		}
	}
	t.Fatalf("manifest change not deployed, active %s", rt.Active().Name())
}

func TestPersonalisedResponsesNotShared(t *testing.T) {
	var down atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if down.Load() {
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				conn.Close()
			}
			return
		}
		switch r.URL.Path {
		case "/api/me":
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "alice-token", HttpOnly: true})
			fmt.Fprint(w, `{"user":"alice"}`)
		case "/api/private":
			w.Header().Set("Cache-Control", "private, max-age=60")
			fmt.Fprint(w, `{"inbox":3}`)
		case "/api/news":
			http.SetCookie(w, &http.Cookie{Name: "tracking", Value: "t1"})
			fmt.Fprint(w, `{"news":[]}`)
		}
	}))
	t.Cleanup(srv.Close)
	u, _ := url.Parse(srv.URL)
	rt := NewRuntime(NewMemoryStorage(), u, "site")
	rt.Deploy(context.Background(), manifest("v1"))

	// 在线时原样转发，包括 Set-Cookie
	rec := get(t, rt, "/api/me", map[string]string{"Cookie": "session=alice-token"})
	if rec.Header().Get("Set-Cookie") == "" {
		t.Fatal("online response must keep Set-Cookie")
	}
	get(t, rt, "/api/private", nil)
	get(t, rt, "/api/news", nil)

	down.Store(true)
	for _, path := range []string{"/api/me", "/api/private"} {
		if rec := get(t, rt, path, nil); rec.Code != http.StatusBadGateway {
			t.Fatalf("%s must not be served from the shared cache, got %d %q", path, rec.Code, rec.Body.String())
		}
	}
	rec = get(t, rt, "/api/news", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("X-Asset-Cache") != "FALLBACK" {
		t.Fatalf("expected public response from cache, got %d", rec.Code)
	}
	if c := rec.Header().Get("Set-Cookie"); c != "" {
		t.Fatalf("cached response leaked cookie %q", c)
	}
}

func TestAssetQueryStringHitsPrecache(t *testing.T) {
	o := newOrigin(t, siteFiles())
	rt := NewRuntime(NewMemoryStorage(), o.url(t), "site")
	if err := rt.Deploy(context.Background(), manifest("v1", "/assets/app.js")); err != nil {
		t.Fatalf("deploy: %v", err)
	}

	rec := get(t, rt, "/assets/app.js?v=1", nil)
	if rec.Header().Get("X-Asset-Cache") != "HIT" || rec.Body.String() != "console.log('v1')" {
		t.Fatalf("expected precached asset, got %s %q", rec.Header().Get("X-Asset-Cache"), rec.Body.String())
	}
	if n := o.count("/assets/app.js?v=1"); n != 0 {
		t.Fatalf("versioned asset must not reach the origin, got %d", n)
	}
}
