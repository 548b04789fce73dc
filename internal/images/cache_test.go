package images

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(t.TempDir(), testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func photoServer(t *testing.T, hits *atomic.Int64, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchDownloadsOnce(t *testing.T) {
	var hits atomic.Int64
	body := []byte("jpeg bytes")
	srv := photoServer(t, &hits, body)
	c := newTestCache(t)
	ctx := context.Background()

	first, err := c.Fetch(ctx, srv.URL+"/photos/1/medium.jpg")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(first) != string(body) {
		t.Fatalf("unexpected body %q", first)
	}

	second, err := c.Fetch(ctx, srv.URL+"/photos/1/medium.jpg")
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if string(second) != string(body) {
		t.Fatalf("unexpected cached body %q", second)
	}
	if hits.Load() != 1 {
		t.Errorf("expected one download, got %d", hits.Load())
	}
}

func TestFetchSurvivesReopen(t *testing.T) {
	var hits atomic.Int64
	srv := photoServer(t, &hits, []byte("png bytes"))
	dir := t.TempDir()
	ctx := context.Background()

	c, err := Open(dir, testLogger())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := c.Fetch(ctx, srv.URL+"/p.png"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	c, err = Open(dir, testLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c.Close()

	got, err := c.Fetch(ctx, srv.URL+"/p.png")
	if err != nil {
		t.Fatalf("Fetch after reopen: %v", err)
	}
	if string(got) != "png bytes" {
		t.Fatalf("unexpected body %q", got)
	}
	if hits.Load() != 1 {
		t.Errorf("expected cache to survive reopen, downloads = %d", hits.Load())
	}
}

func TestFetchErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	c := newTestCache(t)

	if _, err := c.Fetch(context.Background(), srv.URL+"/missing.jpg"); err == nil {
		t.Fatal("expected error for 404 response")
	}
	if c.Contains(srv.URL + "/missing.jpg") {
		t.Error("expected failed download not cached")
	}
}

func TestFetchUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL + "/gone.jpg"
	srv.Close()
	c := newTestCache(t)

	if _, err := c.Fetch(context.Background(), url); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}

func TestContains(t *testing.T) {
	var hits atomic.Int64
	srv := photoServer(t, &hits, []byte("x"))
	c := newTestCache(t)
	url := srv.URL + "/a.jpg"

	if c.Contains(url) {
		t.Error("expected miss before fetch")
	}
	if _, err := c.Fetch(context.Background(), url); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !c.Contains(url) {
		t.Error("expected hit after fetch")
	}
	if hits.Load() != 1 {
		t.Errorf("expected Contains not to download, got %d hits", hits.Load())
	}
}

func TestStatsAndClear(t *testing.T) {
	var hits atomic.Int64
	srv := photoServer(t, &hits, []byte("12345"))
	c := newTestCache(t)
	ctx := context.Background()

	if _, err := c.Fetch(ctx, srv.URL+"/a.jpg"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if _, err := c.Fetch(ctx, srv.URL+"/b.jpg"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	count, size := c.Stats()
	if count != 2 || size != 10 {
		t.Errorf("expected 2 photos of 10 bytes, got %d of %d", count, size)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	count, size = c.Stats()
	if count != 0 || size != 0 {
		t.Errorf("expected empty cache after clear, got %d of %d", count, size)
	}

	// A fetch after clear downloads again
	if _, err := c.Fetch(ctx, srv.URL+"/a.jpg"); err != nil {
		t.Fatalf("Fetch after clear: %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected redownload after clear, got %d hits", hits.Load())
	}
}
