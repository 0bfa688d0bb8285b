// Package pipeline fans the compression client out over the candidate list
// and aggregates the settled outcomes for reporting.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/tinyimg/tinyimg/internal/logging"
	"github.com/tinyimg/tinyimg/internal/metrics"
	"github.com/tinyimg/tinyimg/internal/tinify"
)

// Compressor 处理单个文件并总是返回已落定的结果，tinify.Client 为默认实现。
type Compressor interface {
	Compress(ctx context.Context, path string) tinify.Outcome
}

// Options 配置 Runner。
type Options struct {
	Compressor Compressor
	// MaxConcurrency 限制同时在途的压缩调用数，<= 0 表示不限制。
	MaxConcurrency int
	// BaseDir 用于计算报表中的相对路径。
	BaseDir string
	Logger  *logrus.Logger
	Metrics *metrics.Recorder
	RunID   string
}

// Runner 并发执行压缩调用并收集结果。
type Runner struct {
	opts Options
}

// Result 是一次批处理的完整结果，Outcomes/Records 按完成顺序排列。
type Result struct {
	Outcomes  []tinify.Outcome
	Records   []Record
	Elapsed   time.Duration
	Total     int
	Succeeded int
	Skipped   int
	Failed    int
}

// NewRunner constructs a Runner.
func NewRunner(opts Options) *Runner {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Runner{opts: opts}
}

// Run 对每个候选文件调用 Compressor，等待全部调用落定后返回。
// 单个调用失败或 panic 只影响自身结果。
func (r *Runner) Run(ctx context.Context, candidates []string) Result {
	started := time.Now()

	p := pool.NewWithResults[tinify.Outcome]()
	if r.opts.MaxConcurrency > 0 {
		p = p.WithMaxGoroutines(r.opts.MaxConcurrency)
	}

	fields := logging.BaseFields("run_start", "")
	fields["run_id"] = r.opts.RunID
	fields["candidates"] = len(candidates)
	fields["max_concurrency"] = r.opts.MaxConcurrency
	r.opts.Logger.WithFields(fields).Info("开始压缩")

	for _, path := range candidates {
		p.Go(func() tinify.Outcome {
			out := r.compressOne(ctx, path)
			r.opts.Metrics.Observe(out)
			return out
		})
	}
	outcomes := p.Wait()

	result := Result{
		Outcomes: outcomes,
		Records:  make([]Record, 0, len(outcomes)),
		Elapsed:  time.Since(started),
		Total:    len(candidates),
	}
	for _, out := range outcomes {
		switch out.Status {
		case tinify.StatusSuccess:
			result.Succeeded++
		case tinify.StatusSkipped:
			result.Skipped++
		default:
			result.Failed++
		}
		result.Records = append(result.Records, NewRecord(r.opts.BaseDir, out))
	}
	r.opts.Metrics.ObserveRun(result.Total, result.Elapsed)

	fields = logging.BaseFields("run_done", "")
	fields["run_id"] = r.opts.RunID
	fields["succeeded"] = result.Succeeded
	fields["skipped"] = result.Skipped
	fields["failed"] = result.Failed
	fields["elapsed_ms"] = result.Elapsed.Milliseconds()
	r.opts.Logger.WithFields(fields).Info("压缩结束")

	return result
}

func (r *Runner) compressOne(ctx context.Context, path string) (out tinify.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			out = tinify.Outcome{
				Path:    path,
				Status:  tinify.StatusFailed,
				Message: fmt.Sprintf("panic: %v", rec),
			}
		}
	}()
	return r.opts.Compressor.Compress(ctx, path)
}
