// Package metrics records per-run counters in a private Prometheus registry
// and can dump them in the node_exporter textfile format, so scheduled runs
// can be scraped without a long-lived HTTP endpoint.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tinyimg/tinyimg/internal/tinify"
)

const namespace = "tinyimg"

// Recorder 持有一次运行的全部指标。nil Recorder 上的方法均为空操作。
type Recorder struct {
	registry   *prometheus.Registry
	files      *prometheus.CounterVec
	savedBytes prometheus.Counter
	duration   prometheus.Histogram
	candidates prometheus.Gauge
	runSeconds prometheus.Gauge
	lastRun    prometheus.Gauge
}

// NewRecorder 创建独立 registry，避免污染全局默认 registry。
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Processed files by outcome status.",
		}, []string{"status"}),
		savedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "saved_bytes_total",
			Help:      "Bytes saved by rewritten files.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_duration_seconds",
			Help:      "Wall time spent on a single file, upload through rewrite.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "candidates",
			Help:      "Candidate files found by the last walk.",
		}),
		runSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	r.registry.MustRegister(r.files, r.savedBytes, r.duration, r.candidates, r.runSeconds, r.lastRun)
	for _, status := range []tinify.Status{tinify.StatusSuccess, tinify.StatusSkipped, tinify.StatusFailed} {
		r.files.WithLabelValues(string(status))
	}
	return r
}

// Registry 暴露底层 registry，供测试或其它输出方式使用。
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Observe 记录单个文件的处理结果。
func (r *Recorder) Observe(out tinify.Outcome) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(string(out.Status)).Inc()
	r.duration.Observe(out.Duration.Seconds())
	if out.Status == tinify.StatusSuccess && out.RawSize > out.CompressedSize {
		r.savedBytes.Add(float64(out.RawSize - out.CompressedSize))
	}
}

// ObserveRun 记录整批运行的候选数量与耗时。
func (r *Recorder) ObserveRun(candidates int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.candidates.Set(float64(candidates))
	r.runSeconds.Set(elapsed.Seconds())
	r.lastRun.SetToCurrentTime()
}

// WriteTextfile 以 textfile collector 格式写出指标，path 为空时跳过。
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
