package server

import (
	"errors"
	"fmt"

	"github.com/any-hub/static-cache/internal/config"
	"github.com/any-hub/static-cache/internal/staticcache"
)

// BinRoute 将 Bin 配置与派生属性（生效的 fallback class、缓存目录、装饰器实例）
// 聚合在一起，供 HTTP 层与诊断接口直接复用。
type BinRoute struct {
	// Config 是用户在 config.toml 中声明的 Bin 字段副本。
	Config config.BinConfig
	// FallbackClass/CacheDirectory 是合并全局默认值后的结果。
	FallbackClass  string
	CacheDirectory string
	// Cache 是绑定到该 Bin 的静态文件装饰器。
	Cache *staticcache.Decorator
}

// BinRegistry 提供 Bin 名称到 BinRoute 的查询能力。
type BinRegistry struct {
	routes  map[string]*BinRoute
	ordered []*BinRoute
}

// NewBinRegistry 根据配置为每个 Bin 构造装饰器。调用方应在启动阶段创建一次并复用。
func NewBinRegistry(cfg *config.Config, opts ...staticcache.Option) (*BinRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &BinRegistry{
		routes: make(map[string]*BinRoute, len(cfg.Bins)),
	}

	for _, bin := range cfg.Bins {
		if _, exists := registry.routes[bin.Name]; exists {
			return nil, fmt.Errorf("duplicate bin detected: %s", bin.Name)
		}

		decorator, err := staticcache.NewFromConfig(cfg, bin.Name, opts...)
		if err != nil {
			return nil, fmt.Errorf("bin %s: %w", bin.Name, err)
		}

		route := &BinRoute{
			Config:         bin,
			FallbackClass:  cfg.EffectiveFallbackClass(bin),
			CacheDirectory: cfg.EffectiveCacheDirectory(bin),
			Cache:          decorator,
		}
		registry.routes[bin.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据名称查找 BinRoute，名称区分大小写。
func (r *BinRegistry) Lookup(name string) (*BinRoute, bool) {
	if r == nil || name == "" {
		return nil, false
	}
	route, ok := r.routes[name]
	return route, ok
}

// List 返回当前注册的 BinRoute 列表（按配置定义的顺序），用于诊断输出。
func (r *BinRegistry) List() []BinRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]BinRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}
