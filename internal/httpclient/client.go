// Package httpclient builds the shared http.Client used for every request to
// the compression service and its output URLs.
package httpclient

import (
	"net"
	"net/http"
	"time"

	"github.com/tinyimg/tinyimg/internal/config"
)

// DefaultTimeout 在配置缺失时使用。
const DefaultTimeout = 60 * time.Second

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// New 返回共享 http.Client；超时覆盖提交与下载两个阶段的单次请求。
func New(cfg *config.Config) *http.Client {
	timeout := DefaultTimeout
	if cfg != nil && cfg.RequestTimeout.DurationValue() > 0 {
		timeout = cfg.RequestTimeout.DurationValue()
	}

	transport := defaultTransport.Clone()
	if cfg != nil && cfg.MaxConcurrency > 0 {
		transport.MaxConnsPerHost = cfg.MaxConcurrency
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}
