package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"
)

// Validate 针对语义级别做进一步校验，防止非法配置进入压缩流程。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	if strings.TrimSpace(c.Folder) == "" {
		return newFieldError("Folder", "不能为空")
	}
	if c.MaxFileSize <= 0 {
		return newFieldError("MaxFileSize", "必须大于 0")
	}
	if len(c.ExtensionSet()) == 0 {
		return newFieldError("Extensions", "至少需要一个扩展名")
	}
	if strings.TrimSpace(c.CacheFile) == "" {
		return newFieldError("CacheFile", "不能为空")
	}
	if c.MinRatio <= 0 || c.MinRatio >= 100 {
		return newFieldError("MinRatio", "必须在 0-100 之间（不含边界）")
	}
	if err := validateEndpoint(c.Endpoint); err != nil {
		return newFieldError("Endpoint", err.Error())
	}
	if c.MaxConcurrency < 0 {
		return newFieldError("MaxConcurrency", "不能为负数")
	}
	if c.RequestTimeout.DurationValue() <= 0 {
		return newFieldError("RequestTimeout", "必须大于 0")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return newFieldError("LogLevel", fmt.Sprintf("无法识别: %s", c.LogLevel))
	}
	if c.LogMaxSize < 0 {
		return newFieldError("LogMaxSize", "不能为负数")
	}
	if c.LogMaxBackups < 0 {
		return newFieldError("LogMaxBackups", "不能为负数")
	}

	return nil
}

func validateEndpoint(raw string) error {
	if raw == "" {
		return errors.New("缺少压缩服务地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
