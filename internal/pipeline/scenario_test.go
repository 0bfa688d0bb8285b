package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"gocloud.dev/blob/memblob"

	"github.com/tinyimg/tinyimg/internal/cache"
	"github.com/tinyimg/tinyimg/internal/logging"
	"github.com/tinyimg/tinyimg/internal/stubserver"
	"github.com/tinyimg/tinyimg/internal/tinify"
	"github.com/tinyimg/tinyimg/internal/walker"
)

// 文件内容首字节决定桩服务的响应：A 压缩 55%，B 压缩 1.2%，C 下载阶段断网。
func scenarioDecider(body []byte) stubserver.Behavior {
	switch {
	case bytes.HasPrefix(body, []byte("A")):
		return stubserver.Behavior{Ratio: 0.45}
	case bytes.HasPrefix(body, []byte("B")):
		return stubserver.Behavior{Ratio: 0.988}
	default:
		return stubserver.Behavior{Ratio: 0.5, BrokenFetch: true}
	}
}

func TestScenarioMixedOutcomes(t *testing.T) {
	srv, err := stubserver.Start(scenarioDecider)
	if err != nil {
		t.Skipf("unable to start stub listener: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })

	root := t.TempDir()
	files := map[string][]byte{
		"a.png": bytes.Repeat([]byte("A"), 400),
		"b.jpg": bytes.Repeat([]byte("B"), 400),
		"c.gif": bytes.Repeat([]byte("C"), 400),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(root, name), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	store := cache.NewBucketStore(memblob.OpenBucket(nil), "cacheData.json", logging.Discard())
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	candidates, err := walker.New(walker.Options{Store: store, Logger: logging.Discard()}).Walk(ctx, root, false)
	if err != nil {
		t.Fatalf("walk error: %v", err)
	}

	client := tinify.New(tinify.Options{
		Endpoint: srv.Endpoint(),
		Headers:  tinify.AnonymousHeaders{UserAgent: "tinyimg-test"},
		Store:    store,
		Logger:   logging.Discard(),
	})
	runner := NewRunner(Options{Compressor: client, MaxConcurrency: 3, BaseDir: root, Logger: logging.Discard()})

	result := runner.Run(ctx, walker.Paths(candidates))
	if len(result.Outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(result.Outcomes))
	}

	byName := map[string]tinify.Outcome{}
	for _, out := range result.Outcomes {
		byName[filepath.Base(out.Path)] = out
	}
	if byName["a.png"].Status != tinify.StatusSuccess {
		t.Fatalf("a.png should succeed: %+v", byName["a.png"])
	}
	if byName["b.jpg"].Status != tinify.StatusSkipped {
		t.Fatalf("b.jpg should be skipped: %+v", byName["b.jpg"])
	}
	if byName["c.gif"].Status != tinify.StatusFailed {
		t.Fatalf("c.gif should fail: %+v", byName["c.gif"])
	}

	assertContent(t, filepath.Join(root, "a.png"), files["a.png"][:180])
	assertContent(t, filepath.Join(root, "b.jpg"), files["b.jpg"])
	assertContent(t, filepath.Join(root, "c.gif"), files["c.gif"])

	entries, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if len(entries) != 1 || entries[0] != filepath.Join(root, "b.jpg") {
		t.Fatalf("only b.jpg should be in the skip-list, got %v", entries)
	}

	// 第二次扫描不再包含被跳过的文件
	again, err := walker.New(walker.Options{Store: store, Logger: logging.Discard()}).Walk(ctx, root, false)
	if err != nil {
		t.Fatalf("walk error: %v", err)
	}
	for _, c := range again {
		if filepath.Base(c.Path) == "b.jpg" {
			t.Fatalf("skip-listed file must not be resubmitted")
		}
	}
}

func assertContent(t *testing.T, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected content for %s: %d bytes", filepath.Base(path), len(got))
	}
}
