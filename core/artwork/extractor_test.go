package artwork

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"StudioFM/model"

	"github.com/bogem/id3v2"
	"github.com/dhowden/tag"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// taggedMP3 生成带 APIC 帧的 ID3v2 头加上一段伪造的音频数据
func taggedMP3(t *testing.T, cover []byte) []byte {
	t.Helper()
	tg := id3v2.NewEmptyTag()
	tg.SetTitle("Night Drive")
	tg.SetArtist("Studio")
	if cover != nil {
		tg.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    "image/png",
			PictureType: id3v2.PTFrontCover,
			Description: "Front cover",
			Picture:     cover,
		})
	}
	var buf bytes.Buffer
	if _, err := tg.WriteTo(&buf); err != nil {
		t.Fatalf("write tag: %v", err)
	}
	buf.Write(bytes.Repeat([]byte{0xFF, 0xFB, 0x90, 0x00}, 2048))
	return buf.Bytes()
}

type audioServer struct {
	*httptest.Server
	hits   sync.Map // path -> *int64
	ranges sync.Map // path -> Range header
}

func (s *audioServer) count(path string) int64 {
	v, ok := s.hits.Load(path)
	if !ok {
		return 0
	}
	return atomic.LoadInt64(v.(*int64))
}

func newAudioServer(t *testing.T, files map[string][]byte) *audioServer {
	t.Helper()
	s := &audioServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, _ := s.hits.LoadOrStore(r.URL.Path, new(int64))
		atomic.AddInt64(v.(*int64), 1)
		s.ranges.Store(r.URL.Path, r.Header.Get("Range"))

		if r.URL.Path == "/slow.mp3" {
			time.Sleep(300 * time.Millisecond)
		}
		data, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data)
	}))
	t.Cleanup(s.Close)
	return s
}

func TestExtractFindsEmbeddedPicture(t *testing.T) {
	cover := pngBytes(t)
	srv := newAudioServer(t, map[string][]byte{"/a.mp3": taggedMP3(t, cover)})
	e := NewExtractor(NewCache(), WithMaxBytes(64*1024))

	got, ok := e.Extract(context.Background(), srv.URL+"/a.mp3")
	if !ok {
		t.Fatal("expected artwork")
	}
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Fatalf("unexpected data url prefix: %.40s", got)
	}
	if rng, _ := srv.ranges.Load("/a.mp3"); rng != "bytes=0-65535" {
		t.Fatalf("expected bounded range request, got %v", rng)
	}
}

func TestExtractCachesResult(t *testing.T) {
	srv := newAudioServer(t, map[string][]byte{"/a.mp3": taggedMP3(t, pngBytes(t))})
	e := NewExtractor(nil)
	url := srv.URL + "/a.mp3"

	first, ok1 := e.Extract(context.Background(), url)
	second, ok2 := e.Extract(context.Background(), url)
	if !ok1 || !ok2 || first != second {
		t.Fatalf("expected identical cached results, ok1=%v ok2=%v", ok1, ok2)
	}
	if n := srv.count("/a.mp3"); n != 1 {
		t.Fatalf("expected exactly 1 fetch, got %d", n)
	}
}

func TestExtractFailuresCachedAsNegative(t *testing.T) {
	srv := newAudioServer(t, map[string][]byte{
		"/plain.mp3":   taggedMP3(t, nil),
		"/garbage.mp3": bytes.Repeat([]byte("not audio"), 100),
		"/slow.mp3":    taggedMP3(t, pngBytes(t)),
	})
	e := NewExtractor(NewCache(), WithTimeout(50*time.Millisecond))

	cases := []string{"/missing.mp3", "/plain.mp3", "/garbage.mp3", "/slow.mp3"}
	for _, path := range cases {
		url := srv.URL + path
		for i := 0; i < 2; i++ {
			if got, ok := e.Extract(context.Background(), url); ok || got != "" {
				t.Fatalf("%s: expected no artwork, got ok=%v", path, ok)
			}
		}
		if n := srv.count(path); n != 1 {
			t.Fatalf("%s: expected 1 fetch, got %d", path, n)
		}
		entry, cached := e.Peek(url)
		if !cached || entry.Found {
			t.Fatalf("%s: expected negative cache entry, got %+v cached=%v", path, entry, cached)
		}
	}
}

func TestExtractUnreachableHost(t *testing.T) {
	e := NewExtractor(NewCache(), WithTimeout(200*time.Millisecond))
	if _, ok := e.Extract(context.Background(), "http://127.0.0.1:1/none.mp3"); ok {
		t.Fatal("expected no artwork for unreachable host")
	}
	if _, cached := e.Peek("http://127.0.0.1:1/none.mp3"); !cached {
		t.Fatal("expected negative entry for unreachable host")
	}
}

func TestPeekAndClear(t *testing.T) {
	srv := newAudioServer(t, map[string][]byte{"/a.mp3": taggedMP3(t, pngBytes(t))})
	e := NewExtractor(NewCache())
	url := srv.URL + "/a.mp3"

	if _, cached := e.Peek(url); cached {
		t.Fatal("expected miss before extraction")
	}
	if srv.count("/a.mp3") != 0 {
		t.Fatal("Peek must not fetch")
	}
	e.Extract(context.Background(), url)
	if entry, cached := e.Peek(url); !cached || !entry.Found {
		t.Fatalf("expected positive entry, got %+v", entry)
	}

	e.ClearCache()
	if e.Cache().Len() != 0 {
		t.Fatal("expected empty cache after clear")
	}
	e.Extract(context.Background(), url)
	if n := srv.count("/a.mp3"); n != 2 {
		t.Fatalf("expected refetch after clear, got %d fetches", n)
	}
}

func TestConcurrentExtractCoalesces(t *testing.T) {
	srv := newAudioServer(t, map[string][]byte{"/slow.mp3": taggedMP3(t, pngBytes(t))})
	e := NewExtractor(NewCache())
	url := srv.URL + "/slow.mp3"

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := e.Extract(context.Background(), url); !ok {
				t.Error("expected artwork")
			}
		}()
	}
	wg.Wait()
	if n := srv.count("/slow.mp3"); n != 1 {
		t.Fatalf("expected coalesced single fetch, got %d", n)
	}
}

func TestPreloadIsolatesFailures(t *testing.T) {
	srv := newAudioServer(t, map[string][]byte{
		"/a.mp3": taggedMP3(t, pngBytes(t)),
		"/b.mp3": taggedMP3(t, nil),
		"/c.mp3": taggedMP3(t, pngBytes(t)),
	})
	e := NewExtractor(NewCache(), WithConcurrency(2))

	// a 已缓存，不应重复请求
	e.Extract(context.Background(), srv.URL+"/a.mp3")

	tracks := []model.Track{
		{ID: "a", AudioURL: srv.URL + "/a.mp3"},
		{ID: "b", AudioURL: srv.URL + "/b.mp3"},
		{ID: "missing", AudioURL: srv.URL + "/missing.mp3"},
		{ID: "c", AudioURL: srv.URL + "/c.mp3"},
		{ID: "c-dup", AudioURL: srv.URL + "/c.mp3"},
		{ID: "no-url"},
	}
	if started := e.Preload(context.Background(), tracks); started != 3 {
		t.Fatalf("expected 3 extractions started, got %d", started)
	}

	if entry, _ := e.Peek(srv.URL + "/c.mp3"); !entry.Found {
		t.Fatal("expected c to be extracted despite sibling failures")
	}
	if entry, cached := e.Peek(srv.URL + "/missing.mp3"); !cached || entry.Found {
		t.Fatal("expected negative entry for missing track")
	}
	if n := srv.count("/a.mp3"); n != 1 {
		t.Fatalf("cached track refetched: %d", n)
	}
	if n := srv.count("/c.mp3"); n != 1 {
		t.Fatalf("duplicate url fetched %d times", n)
	}
}

func TestDataURLFallsBackToSniffing(t *testing.T) {
	cover := pngBytes(t)
	got := dataURL(&tag.Picture{MIMEType: "PNG", Data: cover})
	if !strings.HasPrefix(got, "data:image/png;base64,") {
		t.Fatalf("unexpected data url %.40s", got)
	}
}
