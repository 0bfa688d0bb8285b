package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// Config 是 TOML 文件映射的整体结构，CLI 标志会在加载后覆盖其中的扫描参数。
type Config struct {
	// 扫描参数
	Folder      string   `mapstructure:"Folder"`
	Recursive   bool     `mapstructure:"Recursive"`
	Verbose     bool     `mapstructure:"Verbose"`
	MaxFileSize int64    `mapstructure:"MaxFileSize"`
	Extensions  []string `mapstructure:"Extensions"`

	// ExtensionsIgnoreCase 为 true 时 A.PNG 也会匹配 .png，默认严格区分大小写。
	ExtensionsIgnoreCase bool `mapstructure:"ExtensionsIgnoreCase"`

	// 跳过列表
	CacheFile string  `mapstructure:"CacheFile"`
	MinRatio  float64 `mapstructure:"MinRatio"`

	// 远端压缩服务
	Endpoint          string   `mapstructure:"Endpoint"`
	UserAgent         string   `mapstructure:"UserAgent"`
	SpoofForwardedFor bool     `mapstructure:"SpoofForwardedFor"`
	MaxConcurrency    int      `mapstructure:"MaxConcurrency"`
	RequestTimeout    Duration `mapstructure:"RequestTimeout"`

	// 日志与指标
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`
	MetricsFile   string `mapstructure:"MetricsFile"`
}

// ExtensionSet 返回带点的扩展名集合，供目录扫描做 O(1) 匹配。
// 仅在 ExtensionsIgnoreCase 开启时统一转为小写，否则保留原样。
func (c *Config) ExtensionSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.Extensions))
	for _, ext := range c.Extensions {
		normalized := strings.TrimSpace(ext)
		if normalized == "" {
			continue
		}
		if c.ExtensionsIgnoreCase {
			normalized = strings.ToLower(normalized)
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		set[normalized] = struct{}{}
	}
	return set
}
