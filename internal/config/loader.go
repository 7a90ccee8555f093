package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// defaultUpdateIgnoreKeys 是未配置 UpdateIgnoreKeys 时忽略的对象字段。
var defaultUpdateIgnoreKeys = []string{"created"}

// Load 读取并解析 TOML 配置文件，同时注入默认值与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	if err := rejectBinLevelGlobals(v); err != nil {
		return nil, err
	}
	explicitGet := explicitGetAllowed(v)

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	for i := range cfg.Bins {
		applyBinDefaults(&cfg.Bins[i], explicitGet[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absDir, err := filepath.Abs(cfg.Global.CacheDirectory)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.CacheDirectory = absDir
	for i := range cfg.Bins {
		if cfg.Bins[i].CacheDirectory == "" {
			continue
		}
		binDir, err := filepath.Abs(cfg.Bins[i].CacheDirectory)
		if err != nil {
			return nil, fmt.Errorf("无法解析 %s 缓存目录: %w", cfg.Bins[i].Name, err)
		}
		cfg.Bins[i].CacheDirectory = binDir
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 5000)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("CacheDirectory", "./storage")
	v.SetDefault("FallbackClass", "memory")
	v.SetDefault("Redis.KeyPrefix", "static-cache")
	v.SetDefault("Redis.DialTimeout", "5s")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 5000
	}
	if g.LogLevel == "" {
		g.LogLevel = "info"
	}
	g.FallbackClass = strings.ToLower(strings.TrimSpace(g.FallbackClass))
	if g.Redis.DialTimeout.DurationValue() == 0 {
		g.Redis.DialTimeout = Duration(5 * time.Second)
	}
}

// applyBinDefaults 补全 Bin 默认值：未显式声明 GetAllowed 时视为允许读取。
func applyBinDefaults(b *BinConfig, getExplicit bool) {
	b.Name = strings.TrimSpace(b.Name)
	if !getExplicit {
		b.GetAllowed = true
	}
	if b.UpdateIgnoreKeys == nil {
		b.UpdateIgnoreKeys = append([]string(nil), defaultUpdateIgnoreKeys...)
	}
	b.FallbackClass = strings.ToLower(strings.TrimSpace(b.FallbackClass))
	for i, cid := range b.Whitelist {
		b.Whitelist[i] = strings.TrimSpace(cid)
	}
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

// rawBins 返回 [[Bin]] 的原始表，键名大小写保持 viper 读取时的形式。
func rawBins(v *viper.Viper) []map[string]interface{} {
	raw, ok := v.Get("Bin").([]interface{})
	if !ok {
		return nil
	}
	result := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		m, _ := entry.(map[string]interface{})
		result = append(result, m)
	}
	return result
}

func hasKey(m map[string]interface{}, key string) bool {
	for k := range m {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

func rawName(m map[string]interface{}, idx int) string {
	for k, val := range m {
		if strings.EqualFold(k, "Name") {
			if name, ok := val.(string); ok && name != "" {
				return name
			}
		}
	}
	return fmt.Sprintf("#%d", idx)
}

// rejectBinLevelGlobals 拒绝只在全局生效的字段出现在 [[Bin]] 中，避免误以为可以按 Bin 覆盖。
func rejectBinLevelGlobals(v *viper.Viper) error {
	for idx, m := range rawBins(v) {
		for _, key := range []string{"ListenPort", "LogLevel", "Redis"} {
			if hasKey(m, key) {
				return newFieldError(binField(rawName(m, idx), key), "仅支持全局配置，请移到文件顶层")
			}
		}
	}
	return nil
}

func explicitGetAllowed(v *viper.Viper) map[int]bool {
	result := make(map[int]bool)
	for idx, m := range rawBins(v) {
		result[idx] = hasKey(m, "GetAllowed")
	}
	return result
}
