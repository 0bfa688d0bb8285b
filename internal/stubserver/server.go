// Package stubserver runs a local stand-in for the remote shrink service. It
// speaks the same two-phase protocol (POST raw bytes, then GET the returned
// output URL) and lets callers decide per upload how the service responds,
// which makes the compression client and the pipeline testable offline.
package stubserver

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

// ShrinkPath 与线上服务保持一致。
const ShrinkPath = "/backend/opt/shrink"

// Behavior 决定某次上传的响应方式。
type Behavior struct {
	// Ratio 为 output.size / input.size，0.45 表示体积减少 55%。
	Ratio float64
	// Reject 返回 {"error": ..., "message": ...} 错误体。
	Reject bool
	// Malformed 返回无法解析的响应体。
	Malformed bool
	// BrokenFetch 让 output.url 指向一个已关闭的端口，下载阶段产生网络错误。
	BrokenFetch bool
	// OmitURL 让响应缺少 output.url。
	OmitURL bool
}

// Decider 根据上传内容选择响应方式。
type Decider func(body []byte) Behavior

// Request 记录收到的请求，便于断言请求头。
type Request struct {
	Method        string
	Path          string
	ContentType   string
	UserAgent     string
	ForwardedFor  string
	ContentLength int
}

// Server 是运行中的桩服务。
type Server struct {
	URL string

	app      *fiber.App
	listener net.Listener
	decide   Decider
	deadAddr string
	done     chan struct{}
	serveErr error
	stopOnce sync.Once
	stopErr  error

	mu       sync.Mutex
	outputs  map[string][]byte
	requests []Request
}

type sizeInfo struct {
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

// Start 在 127.0.0.1 的随机端口启动桩服务。decide 为 nil 时固定返回 0.5 的压缩比。
func Start(decide Decider) (*Server, error) {
	if decide == nil {
		decide = func([]byte) Behavior { return Behavior{Ratio: 0.5} }
	}

	dead, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	deadAddr := dead.Addr().String()
	_ = dead.Close()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}

	s := &Server{
		URL:      "http://" + listener.Addr().String(),
		listener: listener,
		decide:   decide,
		deadAddr: deadAddr,
		outputs:  make(map[string][]byte),
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 16 * 1024 * 1024,
	})
	app.Post(ShrinkPath, s.handleShrink)
	app.Get("/output/:id", s.handleOutput)
	s.app = app

	ready := make(chan struct{})
	app.Hooks().OnListen(func(fiber.ListenData) error {
		close(ready)
		return nil
	})

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.serveErr = app.Listener(listener, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case <-ready:
		return s, nil
	case <-s.done:
		_ = listener.Close()
		return nil, fmt.Errorf("stub server listen: %w", s.serveErr)
	}
}

// Endpoint 返回上传地址。
func (s *Server) Endpoint() string {
	return s.URL + ShrinkPath
}

// Requests 返回目前收到的所有请求副本。
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Close 关闭服务并等待监听协程退出，返回后端口不再接受连接。
func (s *Server) Close() error {
	if s.app == nil {
		return errors.New("stub server not started")
	}
	s.stopOnce.Do(func() {
		err := s.app.Shutdown()
		// Serve 可能尚未进入 Accept，Shutdown 不会关闭它拿到的 listener。
		if cerr := s.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) && err == nil {
			err = cerr
		}
		<-s.done
		s.stopErr = err
	})
	return s.stopErr
}

func (s *Server) handleShrink(c fiber.Ctx) error {
	body := append([]byte(nil), c.Body()...)
	s.record(c, len(body))

	behavior := s.decide(body)
	switch {
	case behavior.Malformed:
		return c.Status(fiber.StatusOK).SendString("<html>busy</html>")
	case behavior.Reject:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad request",
			"message": "Request is invalid",
		})
	}

	n := int(float64(len(body)) * behavior.Ratio)
	if n < 0 {
		n = 0
	}
	if n > len(body) {
		n = len(body)
	}
	compressed := body[:n]
	id := uuid.NewString()

	url := s.URL + "/output/" + id
	switch {
	case behavior.OmitURL:
		url = ""
	case behavior.BrokenFetch:
		url = "http://" + s.deadAddr + "/output/" + id
	default:
		s.mu.Lock()
		s.outputs[id] = compressed
		s.mu.Unlock()
	}

	contentType := http.DetectContentType(body)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"input": sizeInfo{Size: int64(len(body)), Type: contentType},
		"output": outputInfo{
			Size:  int64(len(compressed)),
			Type:  contentType,
			Ratio: behavior.Ratio,
			URL:   url,
		},
	})
}

func (s *Server) handleOutput(c fiber.Ctx) error {
	s.record(c, 0)

	s.mu.Lock()
	payload, ok := s.outputs[c.Params("id")]
	s.mu.Unlock()
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not found",
			"message": "Output is expired",
		})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
	return c.Send(payload)
}

func (s *Server) record(c fiber.Ctx, length int) {
	req := Request{
		Method:        c.Method(),
		Path:          c.Path(),
		ContentType:   c.Get(fiber.HeaderContentType),
		UserAgent:     c.Get(fiber.HeaderUserAgent),
		ForwardedFor:  c.Get(fiber.HeaderXForwardedFor),
		ContentLength: length,
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
}
