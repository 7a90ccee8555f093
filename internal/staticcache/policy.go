package staticcache

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/any-hub/static-cache/internal/cache"
	"github.com/any-hub/static-cache/internal/config"
	"github.com/any-hub/static-cache/internal/fallback"
)

// ErrNoPolicy 表示构造装饰器时没有提供 Provider。
var ErrNoPolicy = errors.New("static cache policy provider required")

// Provider 提供白名单与各操作开关；所有方法在装饰器生命周期内应保持稳定。
type Provider interface {
	IsGetAllowed() bool
	IsAddAllowed() bool
	IsUpdateAllowed() bool
	IsDeleteAllowed() bool

	// IsCidWhitelisted 接收完整形式 <bin>-<cid>。
	IsCidWhitelisted(qualified string) bool
	WhitelistCids() []string

	FallbackCache() (cache.Backend, error)
	FallbackCacheClass() string

	UpdateIgnoreKeys() []string
	CacheDirectory() string
}

// Settings 是基于配置文件的 Provider 实现，fallback 在首次使用时才构造。
type Settings struct {
	GetAllowed    bool
	AddAllowed    bool
	UpdateAllowed bool
	DeleteAllowed bool
	IgnoreKeys    []string
	Class         string
	Directory     string
	Options       fallback.Options

	whitelist map[string]struct{}
	ordered   []string

	once        sync.Once
	fallback    cache.Backend
	fallbackErr error
}

// NewSettings 根据全局配置与 Bin 配置构造 Settings。
func NewSettings(cfg *config.Config, bin config.BinConfig) *Settings {
	s := &Settings{
		GetAllowed:    bin.GetAllowed,
		AddAllowed:    bin.AddAllowed,
		UpdateAllowed: bin.UpdateAllowed,
		DeleteAllowed: bin.DeleteAllowed,
		IgnoreKeys:    append([]string(nil), bin.UpdateIgnoreKeys...),
		Class:         cfg.EffectiveFallbackClass(bin),
		Directory:     cfg.EffectiveCacheDirectory(bin),
		Options:       cfg.FallbackOptions(bin),
	}
	s.SetWhitelist(bin.Whitelist)
	return s
}

// SetWhitelist 替换白名单，仅应在装饰器构造前调用。
func (s *Settings) SetWhitelist(qualified []string) {
	s.whitelist = make(map[string]struct{}, len(qualified))
	s.ordered = s.ordered[:0]
	for _, cid := range qualified {
		if _, dup := s.whitelist[cid]; dup {
			continue
		}
		s.whitelist[cid] = struct{}{}
		s.ordered = append(s.ordered, cid)
	}
}

// WithClock 为 fallback 注入时钟，需在首次调用 FallbackCache 之前设置。
func (s *Settings) WithClock(now func() time.Time) *Settings {
	s.Options.Now = now
	return s
}

func (s *Settings) IsGetAllowed() bool { return s.GetAllowed }
func (s *Settings) IsAddAllowed() bool { return s.AddAllowed }
func (s *Settings) IsUpdateAllowed() bool { return s.UpdateAllowed }
func (s *Settings) IsDeleteAllowed() bool { return s.DeleteAllowed }

func (s *Settings) IsCidWhitelisted(qualified string) bool {
	_, ok := s.whitelist[qualified]
	return ok
}

func (s *Settings) WhitelistCids() []string {
	return append([]string(nil), s.ordered...)
}

func (s *Settings) FallbackCache() (cache.Backend, error) {
	s.once.Do(func() {
		s.fallback, s.fallbackErr = fallback.New(s.Class, s.Options)
	})
	return s.fallback, s.fallbackErr
}

func (s *Settings) FallbackCacheClass() string { return s.Class }

func (s *Settings) UpdateIgnoreKeys() []string {
	return append([]string(nil), s.IgnoreKeys...)
}

func (s *Settings) CacheDirectory() string { return s.Directory }

// settingsFor 在配置中查找 Bin 并构造 Settings。
func settingsFor(cfg *config.Config, name string) (*Settings, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	bin, ok := cfg.Bin(name)
	if !ok {
		return nil, fmt.Errorf("bin %s is not configured", name)
	}
	return NewSettings(cfg, bin), nil
}
