package tinify

import (
	"errors"
	"fmt"
	"time"
)

// Status 是单个文件的处理结果。
type Status string

const (
	StatusSuccess Status = "success"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome 汇总一次 Compress 调用的结果。Skipped 时 CompressedSize 为服务端
// 报告的大小，但文件未被改写。
type Outcome struct {
	Path           string
	Status         Status
	RawSize        int64
	CompressedSize int64
	RatioPercent   float64
	Message        string
	Duration       time.Duration
}

// ErrProtocol 表示服务端返回了无法识别的响应。
var ErrProtocol = errors.New("tinify: unexpected response")

// RemoteError 对应服务端的 {"error": ..., "message": ...} 响应体。
type RemoteError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s (status %d)", e.Code, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// shrinkResult 同时承载成功与失败两种响应体。
type shrinkResult struct {
	Error   string     `json:"error"`
	Message string     `json:"message"`
	Input   inputInfo  `json:"input"`
	Output  outputInfo `json:"output"`
}

type inputInfo struct {
	Size int64  `json:"size"`
	Type string `json:"type"`
}

type outputInfo struct {
	Size   int64   `json:"size"`
	Type   string  `json:"type"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Ratio  float64 `json:"ratio"`
	URL    string  `json:"url"`
}

// gainPercent 将服务端的 output/input 比值换算为体积减少的百分比。
func gainPercent(ratio float64) float64 {
	return (1 - ratio) * 100
}
