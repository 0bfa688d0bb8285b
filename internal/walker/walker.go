// Package walker enumerates the image files eligible for compression.
package walker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tinyimg/tinyimg/internal/cache"
)

// DefaultMaxFileSize 超过该大小的文件不会提交给压缩服务。
const DefaultMaxFileSize int64 = 5 * 1024 * 1024

// DefaultExtensions 为默认允许的图片扩展名（带点，区分大小写）。
var DefaultExtensions = []string{".jpg", ".png", ".webp", ".gif", ".apng"}

// Candidate 是通过扩展名/大小/跳过列表过滤的待压缩文件。
type Candidate struct {
	Path string
	Size int64
	Ext  string
}

// Options 控制过滤规则。
type Options struct {
	MaxFileSize int64
	// Extensions 为允许的扩展名集合，键带点。
	Extensions map[string]struct{}
	// IgnoreCase 为 true 时扩展名比较忽略大小写。
	IgnoreCase bool
	Store      cache.Store
	Logger     *logrus.Logger
}

// Walker 递归扫描目录并产出候选文件列表。
type Walker struct {
	maxSize    int64
	exts       map[string]struct{}
	ignoreCase bool
	store      cache.Store
	logger     *logrus.Logger
}

// New 构造 Walker，未设置的选项使用默认值。
func New(opts Options) *Walker {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = make(map[string]struct{}, len(DefaultExtensions))
		for _, ext := range DefaultExtensions {
			opts.Extensions[ext] = struct{}{}
		}
	}
	if opts.IgnoreCase {
		lowered := make(map[string]struct{}, len(opts.Extensions))
		for ext := range opts.Extensions {
			lowered[strings.ToLower(ext)] = struct{}{}
		}
		opts.Extensions = lowered
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Walker{
		maxSize:    opts.MaxFileSize,
		exts:       opts.Extensions,
		ignoreCase: opts.IgnoreCase,
		store:      opts.Store,
		logger:     opts.Logger,
	}
}

// Walk 列出 root 下的候选文件；recursive 为 true 时进入子目录。
// 目录列举顺序即返回顺序，不额外排序。任何目录读取或 stat 失败都会
// 中止整个扫描并返回错误。
func (w *Walker) Walk(ctx context.Context, root string, recursive bool) ([]Candidate, error) {
	var candidates []Candidate
	if err := w.collect(ctx, root, recursive, &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (w *Walker) collect(ctx context.Context, dir string, recursive bool, out *[]Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// 每个目录读取一次跳过列表
	skipped, err := w.snapshot(ctx)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		filePath := filepath.Join(dir, entry.Name())

		info, err := os.Stat(filePath)
		if err != nil {
			return fmt.Errorf("stat %s: %w", filePath, err)
		}

		if info.Mode().IsRegular() {
			ext := filepath.Ext(entry.Name())
			if info.Size() > w.maxSize || !w.allowed(ext) {
				continue
			}
			if skipped.Contains(filePath) {
				w.logger.WithFields(logrus.Fields{
					"action": "walk_skip",
					"path":   filePath,
				}).Debug("命中跳过列表")
				continue
			}
			*out = append(*out, Candidate{Path: filePath, Size: info.Size(), Ext: ext})
			continue
		}

		if recursive && info.IsDir() {
			if err := w.collect(ctx, filePath, recursive, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) allowed(ext string) bool {
	if w.ignoreCase {
		ext = strings.ToLower(ext)
	}
	_, ok := w.exts[ext]
	return ok
}

func (w *Walker) snapshot(ctx context.Context) (cache.Snapshot, error) {
	if w.store == nil {
		return cache.Snapshot{}, nil
	}
	entries, err := w.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load skip-list: %w", err)
	}
	return cache.NewSnapshot(entries), nil
}

// Paths 提取候选文件的路径，保持原有顺序。
func Paths(candidates []Candidate) []string {
	paths := make([]string, len(candidates))
	for i, c := range candidates {
		paths[i] = c.Path
	}
	return paths
}
