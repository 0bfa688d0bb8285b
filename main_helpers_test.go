package main

import (
	"bytes"
	"path/filepath"
	"testing"
)

// cliOutput 记录一次测试中替换进去的输出缓冲。
type cliOutput struct {
	out *bytes.Buffer
	err *bytes.Buffer
}

var captured *cliOutput

// useBufferWriters 在测试期间把 stdOut/stdErr 换成内存缓冲，结束后恢复。
func useBufferWriters(t *testing.T) {
	t.Helper()

	prevOut, prevErr, prevCaptured := stdOut, stdErr, captured
	captured = &cliOutput{out: &bytes.Buffer{}, err: &bytes.Buffer{}}
	stdOut, stdErr = captured.out, captured.err

	t.Cleanup(func() {
		stdOut, stdErr, captured = prevOut, prevErr, prevCaptured
	})
}

func stdOutBuffer() *bytes.Buffer {
	if captured == nil {
		return &bytes.Buffer{}
	}
	return captured.out
}

func stdErrBuffer() *bytes.Buffer {
	if captured == nil {
		return &bytes.Buffer{}
	}
	return captured.err
}

// configFixture 返回 internal/config/testdata 下的样例配置，测试工作目录即模块根目录。
func configFixture(t *testing.T, name string) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("internal", "config", "testdata", name))
	if err != nil {
		t.Fatalf("无法定位配置样例: %v", err)
	}
	return path
}
