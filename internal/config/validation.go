package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/static-cache/internal/fallback"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.LogLevel != "" {
		if _, err := logrus.ParseLevel(g.LogLevel); err != nil {
			return newFieldError("Global.LogLevel", "无法识别的日志级别: "+g.LogLevel)
		}
	}
	if strings.TrimSpace(g.CacheDirectory) == "" {
		return newFieldError("Global.CacheDirectory", "不能为空")
	}
	if g.FallbackClass != "" {
		if _, ok := fallback.Resolve(g.FallbackClass); !ok {
			return newFieldError("Global.FallbackClass", "仅支持 "+strings.Join(fallback.Keys(), "|"))
		}
	}
	if g.Redis.DialTimeout.DurationValue() < 0 {
		return newFieldError("Global.Redis.DialTimeout", "不能为负数")
	}

	if len(c.Bins) == 0 {
		return errors.New("至少需要配置一个 Bin")
	}

	needsRedis := false
	seenNames := map[string]struct{}{}
	for i := range c.Bins {
		bin := &c.Bins[i]
		if bin.Name == "" {
			return newFieldError("Bin[].Name", "不能为空")
		}
		if err := validateBinName(bin.Name); err != nil {
			return fmt.Errorf("%s: %w", binField(bin.Name, "Name"), err)
		}
		if _, exists := seenNames[bin.Name]; exists {
			return newFieldError(binField(bin.Name, "Name"), "重复")
		}
		seenNames[bin.Name] = struct{}{}

		class := c.EffectiveFallbackClass(*bin)
		def, ok := fallback.Resolve(class)
		if !ok {
			return newFieldError(binField(bin.Name, "FallbackClass"), fmt.Sprintf("未注册 fallback: %s", class))
		}
		if def.Key == "redis" {
			needsRedis = true
		}

		prefix := bin.Name + "-"
		for _, cid := range bin.Whitelist {
			if !strings.HasPrefix(cid, prefix) || len(cid) == len(prefix) {
				return newFieldError(binField(bin.Name, "Whitelist"), fmt.Sprintf("条目 %q 必须为 %s<cid> 形式", cid, prefix))
			}
		}
	}

	if needsRedis && strings.TrimSpace(g.Redis.Addr) == "" {
		return newFieldError("Global.Redis.Addr", "使用 redis fallback 时不能为空")
	}

	return nil
}

func validateBinName(name string) error {
	if strings.ContainsAny(name, `/\ `) {
		return errors.New("Name 不允许包含路径分隔符或空格")
	}
	if name == "." || name == ".." {
		return errors.New("Name 不允许为相对路径")
	}
	return nil
}
