package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/any-hub/static-cache/internal/fallback"
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

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有 Bin 共享同一份参数。
type GlobalConfig struct {
	ListenPort     int         `mapstructure:"ListenPort"`
	LogLevel       string      `mapstructure:"LogLevel"`
	LogFilePath    string      `mapstructure:"LogFilePath"`
	LogMaxSize     int         `mapstructure:"LogMaxSize"`
	LogMaxBackups  int         `mapstructure:"LogMaxBackups"`
	LogCompress    bool        `mapstructure:"LogCompress"`
	CacheDirectory string      `mapstructure:"CacheDirectory"`
	FallbackClass  string      `mapstructure:"FallbackClass"`
	Redis          RedisConfig `mapstructure:"Redis"`
}

// RedisConfig 仅在某个 Bin 选用 redis fallback 时生效。
type RedisConfig struct {
	Addr        string   `mapstructure:"Addr"`
	Password    string   `mapstructure:"Password"`
	DB          int      `mapstructure:"DB"`
	KeyPrefix   string   `mapstructure:"KeyPrefix"`
	DialTimeout Duration `mapstructure:"DialTimeout"`
}

// BinConfig 决定单个缓存 Bin 的静态文件策略与 fallback 选择。
type BinConfig struct {
	Name          string `mapstructure:"Name"`
	GetAllowed    bool   `mapstructure:"GetAllowed"`
	AddAllowed    bool   `mapstructure:"AddAllowed"`
	UpdateAllowed bool   `mapstructure:"UpdateAllowed"`
	DeleteAllowed bool   `mapstructure:"DeleteAllowed"`
	// Whitelist 中的条目均为完整形式 <Name>-<cid>。
	Whitelist        []string `mapstructure:"Whitelist"`
	UpdateIgnoreKeys []string `mapstructure:"UpdateIgnoreKeys"`
	FallbackClass    string   `mapstructure:"FallbackClass"`
	CacheDirectory   string   `mapstructure:"CacheDirectory"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Bins   []BinConfig  `mapstructure:"Bin"`
}

// Bin 按名称查找 Bin 配置。
func (c *Config) Bin(name string) (BinConfig, bool) {
	if c == nil {
		return BinConfig{}, false
	}
	for _, bin := range c.Bins {
		if bin.Name == name {
			return bin, true
		}
	}
	return BinConfig{}, false
}

// EffectiveFallbackClass 返回 Bin 生效的 fallback class，未覆盖时回退至全局值。
func (c *Config) EffectiveFallbackClass(b BinConfig) string {
	if class := strings.ToLower(strings.TrimSpace(b.FallbackClass)); class != "" {
		return class
	}
	if class := strings.ToLower(strings.TrimSpace(c.Global.FallbackClass)); class != "" {
		return class
	}
	return fallback.DefaultClass()
}

// EffectiveCacheDirectory 返回 Bin 生效的静态文件根目录，未覆盖时回退至全局值。
func (c *Config) EffectiveCacheDirectory(b BinConfig) string {
	if dir := strings.TrimSpace(b.CacheDirectory); dir != "" {
		return dir
	}
	return c.Global.CacheDirectory
}

// FallbackOptions 将全局 redis 设置映射为 fallback 构造参数。
func (c *Config) FallbackOptions(b BinConfig) fallback.Options {
	r := c.Global.Redis
	return fallback.Options{
		Bin: b.Name,
		Redis: fallback.RedisOptions{
			Addr:        r.Addr,
			Password:    r.Password,
			DB:          r.DB,
			KeyPrefix:   r.KeyPrefix,
			DialTimeout: r.DialTimeout.DurationValue(),
		},
	}
}

// PolicySummary 输出 `get/add/update/delete` 开关摘要，例如 cache_menu:g+a-u-d-，供日志字段使用。
func (b BinConfig) PolicySummary() string {
	flag := func(name string, on bool) string {
		if on {
			return name + "+"
		}
		return name + "-"
	}
	return fmt.Sprintf("%s:%s%s%s%s", b.Name,
		flag("g", b.GetAllowed), flag("a", b.AddAllowed), flag("u", b.UpdateAllowed), flag("d", b.DeleteAllowed))
}

// PolicySummaries 返回所有 Bin 的策略摘要。
func PolicySummaries(bins []BinConfig) []string {
	if len(bins) == 0 {
		return nil
	}
	result := make([]string, len(bins))
	for i, bin := range bins {
		result[i] = bin.PolicySummary()
	}
	return result
}
