package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultConfigFile 为未显式指定配置时尝试读取的文件，不存在时直接使用默认值。
const DefaultConfigFile = "tinyimg.toml"

// DefaultUserAgent 模拟普通桌面浏览器，匿名访问压缩服务时使用。
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/56.0.2924.87 Safari/537.36"

// Overrides 承载 CLI 标志，非 nil 字段会覆盖配置文件中的同名项。
type Overrides struct {
	Folder    *string
	Recursive *bool
	Verbose   *bool
}

// Load 读取并解析 TOML 配置文件，同时注入默认值、应用 CLI 覆盖并完成校验。
// path 为空时尝试读取 DefaultConfigFile，文件不存在不视为错误。
func Load(path string, overrides Overrides) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix("TINYIMG")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !isNotExist(err) {
			return nil, fmt.Errorf("读取配置失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
		mapstructure.StringToSliceHookFunc(","),
	))); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyOverrides(&cfg, overrides)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absFolder, err := filepath.Abs(cfg.Folder)
	if err != nil {
		return nil, fmt.Errorf("无法解析目标目录: %w", err)
	}
	cfg.Folder = absFolder

	absCache, err := filepath.Abs(cfg.CacheFile)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存文件路径: %w", err)
	}
	cfg.CacheFile = absCache

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Folder", "./")
	v.SetDefault("Recursive", false)
	v.SetDefault("Verbose", false)
	v.SetDefault("MaxFileSize", 5*1024*1024)
	v.SetDefault("Extensions", []string{".jpg", ".png", ".webp", ".gif", ".apng"})
	v.SetDefault("ExtensionsIgnoreCase", false)
	v.SetDefault("CacheFile", defaultCacheFile())
	v.SetDefault("MinRatio", 2.0)
	v.SetDefault("Endpoint", "https://tinypng.com/backend/opt/shrink")
	v.SetDefault("UserAgent", DefaultUserAgent)
	v.SetDefault("SpoofForwardedFor", true)
	v.SetDefault("MaxConcurrency", 8)
	v.SetDefault("RequestTimeout", "60s")
	v.SetDefault("LogLevel", "warn")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("MetricsFile", "")
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Folder != nil && strings.TrimSpace(*o.Folder) != "" {
		cfg.Folder = *o.Folder
	}
	if o.Recursive != nil {
		cfg.Recursive = *o.Recursive
	}
	if o.Verbose != nil {
		cfg.Verbose = *o.Verbose
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Folder) == "" {
		cfg.Folder = "./"
	}
	if strings.TrimSpace(cfg.CacheFile) == "" {
		cfg.CacheFile = defaultCacheFile()
	}
	if cfg.RequestTimeout.DurationValue() == 0 {
		cfg.RequestTimeout = Duration(60 * time.Second)
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
}

// defaultCacheFile 优先放在用户缓存目录，拿不到时退回当前目录。
func defaultCacheFile() string {
	if dir, err := os.UserCacheDir(); err == nil && dir != "" {
		return filepath.Join(dir, "tinyimg", "cacheData.json")
	}
	return filepath.Join(".tinyimg", "cacheData.json")
}

func isNotExist(err error) bool {
	if errors.Is(err, fs.ErrNotExist) {
		return true
	}
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound)
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
