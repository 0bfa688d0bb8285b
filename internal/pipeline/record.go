package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tinyimg/tinyimg/internal/tinify"
)

// placeholder 用于未知字段。
const placeholder = "-"

// Record 是报表中的一行，全部为展示用字符串。
type Record struct {
	RelativePath   string
	RawSize        string
	CompressedSize string
	Ratio          string
	Status         string
}

// Row 以固定列顺序返回字段。
func (r Record) Row() []string {
	return []string{r.RelativePath, r.RawSize, r.CompressedSize, r.Ratio, r.Status}
}

// NewRecord 由 Outcome 派生报表行；失败行只保留已知的原始大小。
func NewRecord(baseDir string, out tinify.Outcome) Record {
	rec := Record{
		RelativePath:   relativePath(baseDir, out.Path),
		RawSize:        placeholder,
		CompressedSize: placeholder,
		Ratio:          placeholder,
		Status:         string(out.Status),
	}
	if out.RawSize > 0 {
		rec.RawSize = FormatKB(out.RawSize)
	}
	if out.Status == tinify.StatusFailed {
		return rec
	}
	rec.CompressedSize = FormatKB(out.CompressedSize)
	rec.Ratio = FormatPercent(out.RatioPercent)
	return rec
}

// FormatKB 输出保留两位小数的 kb 标签，例如 "4.58kb"。
func FormatKB(size int64) string {
	return fmt.Sprintf("%.2fkb", float64(size)/1024)
}

// FormatPercent 输出保留两位小数的百分比标签，例如 "55.00%"。
func FormatPercent(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func relativePath(baseDir, path string) string {
	if baseDir == "" {
		return path
	}
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}
