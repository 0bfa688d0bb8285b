package tinify

import (
	"fmt"
	"math/rand/v2"
	"net/http"
)

// HeaderDecorator 在上传请求发出前补充请求头。
type HeaderDecorator interface {
	Decorate(req *http.Request)
}

// HeaderFunc 让普通函数满足 HeaderDecorator。
type HeaderFunc func(req *http.Request)

// Decorate makes HeaderFunc satisfy HeaderDecorator.
func (f HeaderFunc) Decorate(req *http.Request) {
	f(req)
}

// AnonymousHeaders 模拟浏览器的匿名上传。随机 X-Forwarded-For 用于绕开服务端
// 对匿名用户的频率限制，只在对接 tinypng.com 网页接口时有意义。
type AnonymousHeaders struct {
	UserAgent         string
	SpoofForwardedFor bool
	// IntN 为随机源，测试中可替换；为空时使用 math/rand/v2。
	IntN func(n int) int
}

// Decorate 写入 Content-Type/Cache-Control/User-Agent，按需附加伪造的转发地址。
func (h AnonymousHeaders) Decorate(req *http.Request) {
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Cache-Control", "no-cache")
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	if h.SpoofForwardedFor {
		req.Header.Set("X-Forwarded-For", h.randomIP())
	}
}

// randomIP 生成每段位于 1-254 的 IPv4 地址。
func (h AnonymousHeaders) randomIP() string {
	intn := h.IntN
	if intn == nil {
		intn = rand.IntN
	}
	return fmt.Sprintf("%d.%d.%d.%d", intn(254)+1, intn(254)+1, intn(254)+1, intn(254)+1)
}
