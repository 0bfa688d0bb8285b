package tinify

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gocloud.dev/blob/memblob"

	"github.com/tinyimg/tinyimg/internal/cache"
	"github.com/tinyimg/tinyimg/internal/logging"
	"github.com/tinyimg/tinyimg/internal/stubserver"
)

func TestCompressRewritesFileOnGoodRatio(t *testing.T) {
	srv := startStub(t, func([]byte) stubserver.Behavior { return stubserver.Behavior{Ratio: 0.45} })
	store := newMemStore(t)
	client := newTestClient(srv, store)

	original := bytes.Repeat([]byte("a"), 200)
	path := writeImage(t, "a.png", original)

	out := client.Compress(context.Background(), path)
	if out.Status != StatusSuccess {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.RawSize != 200 || out.CompressedSize != 90 {
		t.Fatalf("unexpected sizes: %+v", out)
	}
	if out.RatioPercent < 54.99 || out.RatioPercent > 55.01 {
		t.Fatalf("expected ratio 55%%, got %.4f", out.RatioPercent)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(data, original[:90]) {
		t.Fatalf("file should equal fetched payload, got %d bytes", len(data))
	}
	if entries := mustLoad(t, store); len(entries) != 0 {
		t.Fatalf("successful file must not enter skip-list: %v", entries)
	}
}

func TestCompressSkipsLowRatio(t *testing.T) {
	srv := startStub(t, func([]byte) stubserver.Behavior { return stubserver.Behavior{Ratio: 0.988} })
	store := newMemStore(t)
	client := newTestClient(srv, store)

	original := bytes.Repeat([]byte("b"), 500)
	path := writeImage(t, "b.jpg", original)

	out := client.Compress(context.Background(), path)
	if out.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %+v", out)
	}
	assertUnchanged(t, path, original)
	if !cache.NewSnapshot(mustLoad(t, store)).Contains(path) {
		t.Fatalf("skipped file must be recorded in skip-list")
	}
	for _, req := range srv.Requests() {
		if req.Method == http.MethodGet {
			t.Fatalf("low ratio must not trigger a download")
		}
	}
}

func TestCompressFailsOnRemoteError(t *testing.T) {
	srv := startStub(t, func([]byte) stubserver.Behavior { return stubserver.Behavior{Reject: true} })
	client := newTestClient(srv, newMemStore(t))

	original := []byte("payload")
	path := writeImage(t, "c.png", original)

	out := client.Compress(context.Background(), path)
	if out.Status != StatusFailed {
		t.Fatalf("expected failed, got %+v", out)
	}
	if !strings.Contains(out.Message, "Request is invalid") {
		t.Fatalf("message should carry remote reason: %q", out.Message)
	}
	assertUnchanged(t, path, original)
}

func TestCompressSettlesOnMalformedResponse(t *testing.T) {
	srv := startStub(t, func([]byte) stubserver.Behavior { return stubserver.Behavior{Malformed: true} })
	client := newTestClient(srv, newMemStore(t))

	original := []byte("payload")
	path := writeImage(t, "d.webp", original)

	out := client.Compress(context.Background(), path)
	if out.Status != StatusFailed {
		t.Fatalf("expected failed, got %+v", out)
	}
	assertUnchanged(t, path, original)
}

func TestCompressFailsOnBrokenFetch(t *testing.T) {
	srv := startStub(t, func([]byte) stubserver.Behavior {
		return stubserver.Behavior{Ratio: 0.3, BrokenFetch: true}
	})
	store := newMemStore(t)
	client := newTestClient(srv, store)

	original := bytes.Repeat([]byte("c"), 64)
	path := writeImage(t, "c.gif", original)

	out := client.Compress(context.Background(), path)
	if out.Status != StatusFailed {
		t.Fatalf("expected failed, got %+v", out)
	}
	assertUnchanged(t, path, original)
	if entries := mustLoad(t, store); len(entries) != 0 {
		t.Fatalf("failed file must not enter skip-list: %v", entries)
	}
}

func TestCompressFailsOnUnreachableEndpoint(t *testing.T) {
	srv := startStub(t, nil)
	endpoint := srv.Endpoint()
	_ = srv.Close()

	client := New(Options{Endpoint: endpoint, Logger: logging.Discard()})
	path := writeImage(t, "e.png", []byte("x"))
	out := client.Compress(context.Background(), path)
	if out.Status != StatusFailed || out.Message == "" {
		t.Fatalf("expected failed with message, got %+v", out)
	}
	assertUnchanged(t, path, []byte("x"))
}

func TestCompressSkipsLowRatioWithoutOutputURL(t *testing.T) {
	srv := startStub(t, func([]byte) stubserver.Behavior {
		return stubserver.Behavior{Ratio: 0.99, OmitURL: true}
	})
	store := newMemStore(t)
	client := newTestClient(srv, store)

	original := bytes.Repeat([]byte("s"), 100)
	path := writeImage(t, "s.png", original)

	out := client.Compress(context.Background(), path)
	if out.Status != StatusSkipped {
		t.Fatalf("low ratio never fetches, url is irrelevant: %+v", out)
	}
	assertUnchanged(t, path, original)
	if !cache.NewSnapshot(mustLoad(t, store)).Contains(path) {
		t.Fatalf("skipped file must be recorded in skip-list")
	}
}

func TestCompressFailsWithoutOutputURL(t *testing.T) {
	srv := startStub(t, func([]byte) stubserver.Behavior {
		return stubserver.Behavior{Ratio: 0.5, OmitURL: true}
	})
	client := newTestClient(srv, newMemStore(t))

	original := bytes.Repeat([]byte("u"), 100)
	path := writeImage(t, "u.png", original)

	out := client.Compress(context.Background(), path)
	if out.Status != StatusFailed || !strings.Contains(out.Message, "missing output url") {
		t.Fatalf("expected failed on missing url, got %+v", out)
	}
	assertUnchanged(t, path, original)
}

func TestCompressFailsOnMissingFile(t *testing.T) {
	client := New(Options{Endpoint: "http://127.0.0.1:1/shrink", Logger: logging.Discard()})
	out := client.Compress(context.Background(), filepath.Join(t.TempDir(), "absent.png"))
	if out.Status != StatusFailed {
		t.Fatalf("expected failed, got %+v", out)
	}
}

func TestCompressSendsConfiguredHeaders(t *testing.T) {
	srv := startStub(t, func([]byte) stubserver.Behavior { return stubserver.Behavior{Ratio: 0.99} })
	client := New(Options{
		Endpoint: srv.Endpoint(),
		Headers:  AnonymousHeaders{UserAgent: "tinyimg-test", SpoofForwardedFor: true},
		Store:    newMemStore(t),
		Logger:   logging.Discard(),
	})

	client.Compress(context.Background(), writeImage(t, "f.png", []byte("body")))

	reqs := srv.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one upload, got %d", len(reqs))
	}
	if reqs[0].UserAgent != "tinyimg-test" {
		t.Fatalf("unexpected user agent %q", reqs[0].UserAgent)
	}
	if strings.Count(reqs[0].ForwardedFor, ".") != 3 {
		t.Fatalf("expected spoofed IPv4 forwarding address, got %q", reqs[0].ForwardedFor)
	}
	if reqs[0].ContentLength != 4 {
		t.Fatalf("upload body should be the raw file, got %d bytes", reqs[0].ContentLength)
	}
}

func TestAnonymousHeadersWithoutSpoofing(t *testing.T) {
	req, _ := http.NewRequest(http.MethodPost, "http://example.com", nil)
	AnonymousHeaders{UserAgent: "ua"}.Decorate(req)
	if req.Header.Get("X-Forwarded-For") != "" {
		t.Fatalf("forwarding address must not be set when spoofing is disabled")
	}
	if req.Header.Get("Cache-Control") != "no-cache" {
		t.Fatalf("expected no-cache header")
	}
}

func TestAnonymousHeadersRandomIPRange(t *testing.T) {
	h := AnonymousHeaders{IntN: func(n int) int { return n - 1 }}
	if ip := h.randomIP(); ip != "254.254.254.254" {
		t.Fatalf("unexpected upper bound ip %s", ip)
	}
	h.IntN = func(int) int { return 0 }
	if ip := h.randomIP(); ip != "1.1.1.1" {
		t.Fatalf("unexpected lower bound ip %s", ip)
	}
}

func TestRemoteErrorIsNotProtocolError(t *testing.T) {
	var err error = &RemoteError{Code: "Bad request", Message: "Request is invalid"}
	if errors.Is(err, ErrProtocol) {
		t.Fatalf("remote rejection should be distinguishable from protocol errors")
	}
}

func newTestClient(srv *stubserver.Server, store cache.Store) *Client {
	return New(Options{
		Endpoint: srv.Endpoint(),
		Headers:  AnonymousHeaders{UserAgent: "tinyimg-test"},
		Store:    store,
		MinRatio: DefaultMinRatio,
		Logger:   logging.Discard(),
		RunID:    "test",
	})
}

func startStub(t *testing.T, decide stubserver.Decider) *stubserver.Server {
	t.Helper()
	srv, err := stubserver.Start(decide)
	if err != nil {
		t.Skipf("unable to start stub listener: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func newMemStore(t *testing.T) cache.Store {
	t.Helper()
	store := cache.NewBucketStore(memblob.OpenBucket(nil), "cacheData.json", logging.Discard())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustLoad(t *testing.T, store cache.Store) []string {
	t.Helper()
	entries, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	return entries
}

func writeImage(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	return path
}

func assertUnchanged(t *testing.T, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("file %s must stay untouched", path)
	}
}
