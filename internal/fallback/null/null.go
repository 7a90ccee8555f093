// Package null 提供不保存任何数据的 fallback，用于只允许静态文件命中的部署与测试夹具。
package null

import (
	"context"

	"github.com/any-hub/static-cache/internal/cache"
	"github.com/any-hub/static-cache/internal/fallback"
)

const classKey = "null"

func init() {
	fallback.MustRegister(fallback.Definition{
		Key:         classKey,
		Description: "Discards writes and always misses",
		New: func(fallback.Options) (cache.Backend, error) {
			return Backend{}, nil
		},
	})
}

// Backend 接受写入但从不命中。
type Backend struct{}

func (Backend) Get(context.Context, string) (*cache.Object, bool, error) {
	return nil, false, nil
}

func (Backend) GetMultiple(_ context.Context, cids []string) (map[string]*cache.Object, []string, error) {
	return map[string]*cache.Object{}, append([]string(nil), cids...), nil
}

func (Backend) Set(context.Context, string, any, cache.Expire) (bool, error) {
	return true, nil
}

func (Backend) Clear(context.Context, string, bool) error {
	return nil
}

func (Backend) IsEmpty(context.Context) (bool, error) {
	return true, nil
}
