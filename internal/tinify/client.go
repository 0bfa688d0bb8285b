package tinify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tinyimg/tinyimg/internal/cache"
	"github.com/tinyimg/tinyimg/internal/logging"
)

// DefaultEndpoint 为 tinypng.com 网页端使用的上传接口。
const DefaultEndpoint = "https://tinypng.com/backend/opt/shrink"

// DefaultMinRatio 低于该百分比的压缩收益不会改写文件，而是记入跳过列表。
const DefaultMinRatio = 2.0

// maxResponseBytes 限制上传阶段 JSON 响应体的读取上限。
const maxResponseBytes = 1 << 20

// Options 描述 Client 的依赖与阈值。
type Options struct {
	HTTPClient *http.Client
	Endpoint   string
	Headers    HeaderDecorator
	Store      cache.Store
	MinRatio   float64
	Logger     *logrus.Logger
	RunID      string
}

// Client 执行单个文件的“上传 → 判定 → 下载改写”流程，可被多个 goroutine 并发使用。
type Client struct {
	http     *http.Client
	endpoint string
	headers  HeaderDecorator
	store    cache.Store
	minRatio float64
	logger   *logrus.Logger
	runID    string
}

// New constructs a Client, filling unset options with defaults.
func New(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.Headers == nil {
		opts.Headers = HeaderFunc(func(*http.Request) {})
	}
	if opts.MinRatio == 0 {
		opts.MinRatio = DefaultMinRatio
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Client{
		http:     opts.HTTPClient,
		endpoint: opts.Endpoint,
		headers:  opts.Headers,
		store:    opts.Store,
		minRatio: opts.MinRatio,
		logger:   opts.Logger,
		runID:    opts.RunID,
	}
}

// Compress 处理单个文件并总是返回一个已落定的 Outcome。
func (c *Client) Compress(ctx context.Context, path string) Outcome {
	started := time.Now()
	out := c.compress(ctx, path)
	out.Duration = time.Since(started)

	fields := logging.FileFields(c.runID, "compress", path)
	fields["status"] = out.Status
	fields["ratio"] = fmt.Sprintf("%.2f", out.RatioPercent)
	fields["elapsed_ms"] = out.Duration.Milliseconds()
	entry := c.logger.WithFields(fields)
	if out.Status == StatusFailed {
		entry.Warn(out.Message)
	} else {
		entry.Info("处理完成")
	}
	return out
}

func (c *Client) compress(ctx context.Context, path string) Outcome {
	out := Outcome{Path: path}

	result, err := c.submit(ctx, path)
	if err != nil {
		return failed(out, err)
	}

	out.RawSize = result.Input.Size
	out.CompressedSize = result.Output.Size
	out.RatioPercent = gainPercent(result.Output.Ratio)

	if out.RatioPercent < c.minRatio {
		if c.store != nil {
			if err := c.store.Add(ctx, path); err != nil {
				c.logger.WithFields(logging.FileFields(c.runID, "cache_add", path)).Warn(err.Error())
			}
		}
		out.Status = StatusSkipped
		return out
	}

	if err := c.fetch(ctx, result.Output.URL, path); err != nil {
		return failed(out, err)
	}
	out.Status = StatusSuccess
	return out
}

// submit 上传原始字节并解析服务端响应；完整读取响应体后再解码。
func (c *Client) submit(ctx context.Context, path string) (*shrinkResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	c.headers.Decorate(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read upload response: %w", err)
	}

	var result shrinkResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: status %d: %v", ErrProtocol, resp.StatusCode, err)
	}
	if result.Error != "" {
		return nil, &RemoteError{StatusCode: resp.StatusCode, Code: result.Error, Message: result.Message}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrProtocol, resp.StatusCode)
	}
	return &result, nil
}

// fetch 下载压缩结果并原子替换 path。
func (c *Client) fetch(ctx context.Context, url, path string) error {
	if url == "" {
		return fmt.Errorf("%w: missing output url", ErrProtocol)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: download status %d", ErrProtocol, resp.StatusCode)
	}

	if _, err := replaceFile(ctx, path, resp.Body); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func failed(out Outcome, err error) Outcome {
	out.Status = StatusFailed
	out.Message = err.Error()
	return out
}
