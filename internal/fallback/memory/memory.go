// Package memory 提供进程内的 fallback 实现，每个 Bin 持有独立的 map，适合单实例部署与测试。
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/any-hub/static-cache/internal/cache"
	"github.com/any-hub/static-cache/internal/fallback"
)

func init() {
	fallback.MustRegister(fallback.Definition{
		Key:         fallback.DefaultClass(),
		Description: "In-process map per bin; contents are lost on restart",
		New: func(opts fallback.Options) (cache.Backend, error) {
			return New(opts.Clock()), nil
		},
	})
}

// Backend 以 RWMutex 保护的 map 保存对象，过期判断沿用 cache.Expire 语义。
type Backend struct {
	mu      sync.RWMutex
	entries map[string]*cache.Object
	now     func() time.Time
}

// New 构造空的内存 fallback；now 为空时使用 time.Now。
func New(now func() time.Time) *Backend {
	if now == nil {
		now = time.Now
	}
	return &Backend{
		entries: make(map[string]*cache.Object),
		now:     now,
	}
}

func (b *Backend) Get(ctx context.Context, cid string) (*cache.Object, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	b.mu.RLock()
	obj, ok := b.entries[cid]
	b.mu.RUnlock()
	if !ok || !obj.Usable(b.now()) {
		return nil, false, nil
	}
	return cloneObject(obj), true, nil
}

func (b *Backend) GetMultiple(ctx context.Context, cids []string) (map[string]*cache.Object, []string, error) {
	found := make(map[string]*cache.Object, len(cids))
	var missing []string
	for _, cid := range cids {
		obj, ok, err := b.Get(ctx, cid)
		if err != nil {
			return nil, nil, err
		}
		if !ok {
			missing = append(missing, cid)
			continue
		}
		found[cid] = obj
	}
	return found, missing, nil
}

func (b *Backend) Set(ctx context.Context, cid string, data any, expire cache.Expire) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if cid == "" {
		return false, cache.ErrInvalidCid
	}
	obj, err := cache.NewObject(cid, data, expire, b.now())
	if err != nil {
		return false, err
	}
	b.mu.Lock()
	b.entries[cid] = obj
	b.mu.Unlock()
	return true, nil
}

func (b *Backend) Clear(ctx context.Context, cid string, wildcard bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := b.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if cache.IsFlushAll(cid, wildcard) {
		b.entries = make(map[string]*cache.Object)
		return nil
	}
	for key, obj := range b.entries {
		if cid == "" {
			if cache.ShouldExpire(obj, now) {
				delete(b.entries, key)
			}
			continue
		}
		if cache.MatchesClear(key, cid, wildcard) {
			delete(b.entries, key)
		}
	}
	return nil
}

func (b *Backend) IsEmpty(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	now := b.now()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, obj := range b.entries {
		if obj.Usable(now) {
			return false, nil
		}
	}
	return true, nil
}

func cloneObject(obj *cache.Object) *cache.Object {
	copied := *obj
	copied.Data = append([]byte(nil), obj.Data...)
	return &copied
}
