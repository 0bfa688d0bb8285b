package cache

import (
	"context"
	"errors"
)

// Store 负责管理跳过列表的读写。持久化格式为一个 JSON 字符串数组：
//
//	["/abs/path/a.png", "/abs/path/b.jpg"]
//
// 每次写入都会整体覆盖，不做增量追加。
type Store interface {
	// Load 返回当前跳过列表。存储不存在时返回空列表；内容无法解析时会先把
	// 存储重置为空数组，再返回空列表，不向调用方暴露错误。
	Load(ctx context.Context) ([]string, error)

	// Add 读取当前列表、追加 path、剔除空值后整体写回。实现需保证并发 Add
	// 不会互相覆盖。
	Add(ctx context.Context, path string) error

	// Clear 同步地把存储覆盖为空数组。
	Clear(ctx context.Context) error

	// Close 释放底层 bucket。
	Close() error
}

// ErrCorrupt 表示跳过列表内容无法解析，Load 会自动修复，仅用于日志与测试断言。
var ErrCorrupt = errors.New("cache: skip-list content is corrupt")

// Snapshot 是某一时刻跳过列表的只读集合视图，目录扫描按目录取一次。
type Snapshot map[string]struct{}

// NewSnapshot 将列表转换为集合，重复条目会被合并。
func NewSnapshot(entries []string) Snapshot {
	snap := make(Snapshot, len(entries))
	for _, entry := range entries {
		if entry == "" {
			continue
		}
		snap[entry] = struct{}{}
	}
	return snap
}

// Contains 判断 path 是否已记录在跳过列表中。
func (s Snapshot) Contains(path string) bool {
	_, ok := s[path]
	return ok
}
