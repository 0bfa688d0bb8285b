package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"
)

// NewStore 以 cacheFile 所在目录为 bucket 根目录构建跳过列表，整个进程复用一份实例。
func NewStore(cacheFile string, logger *logrus.Logger) (Store, error) {
	if cacheFile == "" {
		return nil, errors.New("cache file required")
	}

	abs, err := filepath.Abs(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("resolve cache file: %w", err)
	}

	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
		NoTempDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("open cache bucket: %w", err)
	}

	return NewBucketStore(bucket, filepath.Base(abs), logger), nil
}

// NewBucketStore 基于任意 blob.Bucket 构建跳过列表，测试中可传入 memblob。
// 返回的 Store 拥有 bucket，Close 时会一并关闭。
func NewBucketStore(bucket *blob.Bucket, key string, logger *logrus.Logger) Store {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &bucketStore{
		bucket: bucket,
		key:    key,
		logger: logger,
	}
}

// bucketStore 通过 mu 串行化所有读-改-写操作，保证单一写者。
type bucketStore struct {
	bucket *blob.Bucket
	key    string
	logger *logrus.Logger

	mu sync.Mutex
}

func (s *bucketStore) Load(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *bucketStore) Add(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.load(ctx)
	if err != nil {
		return err
	}

	next := make([]string, 0, len(entries)+1)
	for _, entry := range append(entries, path) {
		if entry == "" {
			continue
		}
		next = append(next, entry)
	}
	return s.write(ctx, next)
}

func (s *bucketStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(ctx, []string{})
}

func (s *bucketStore) Close() error {
	return s.bucket.Close()
}

// load 调用方需持有 mu。
func (s *bucketStore) load(ctx context.Context) ([]string, error) {
	data, err := s.bucket.ReadAll(ctx, s.key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read skip-list: %w", err)
	}

	entries, err := decode(data)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"action": "cache_reset",
			"key":    s.key,
		}).Warn(err.Error())
		if werr := s.write(ctx, []string{}); werr != nil {
			return nil, werr
		}
		return []string{}, nil
	}
	return entries, nil
}

func (s *bucketStore) write(ctx context.Context, entries []string) error {
	if entries == nil {
		entries = []string{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode skip-list: %w", err)
	}
	if err := s.bucket.WriteAll(ctx, s.key, payload, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write skip-list: %w", err)
	}
	return nil
}

// decode 将空内容视为空数组，其余无法解析为字符串数组的内容返回 ErrCorrupt。
func decode(data []byte) ([]string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return []string{}, nil
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if entries == nil {
		entries = []string{}
	}
	return entries, nil
}
