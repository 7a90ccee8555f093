package staticcache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/any-hub/static-cache/internal/cache"
)

// StaticStore 是装饰器使用的静态文件路径。读取类方法以 ok=false 表示未命中，
// error 仅用于 I/O 等故障。
type StaticStore interface {
	CacheObjectFromCid(ctx context.Context, cid string) (*cache.Object, bool, error)
	FilepathFromCid(cid string) (string, error)
	LoadFile(ctx context.Context, path string) (*cache.Object, bool, error)
	WriteFile(ctx context.Context, path string, obj *cache.Object) error
	DeleteFile(ctx context.Context, path string) error
	// DeleteMatching 删除 cid 以 prefix 开头的文件（prefix 为空表示全部），
	// onlyExpired 为 true 时只删除临时或已过期的对象，返回删除数量。
	DeleteMatching(ctx context.Context, prefix string, onlyExpired bool) (int, error)
	IsEmpty(ctx context.Context) (bool, error)
}

type fileStatic struct {
	bin   string
	store cache.Store
	now   func() time.Time
}

// NewFileStatic 将 cache.Store 适配为单个 Bin 的 StaticStore。
func NewFileStatic(bin string, store cache.Store, now func() time.Time) StaticStore {
	if now == nil {
		now = time.Now
	}
	return &fileStatic{bin: bin, store: store, now: now}
}

func (f *fileStatic) CacheObjectFromCid(ctx context.Context, cid string) (*cache.Object, bool, error) {
	path, err := f.FilepathFromCid(cid)
	if err != nil {
		return nil, false, err
	}
	obj, ok, err := f.LoadFile(ctx, path)
	if err != nil || !ok {
		return nil, false, err
	}
	if !obj.Usable(f.now()) {
		return nil, false, nil
	}
	return obj, true, nil
}

func (f *fileStatic) FilepathFromCid(cid string) (string, error) {
	return f.store.Path(cache.Locator{Bin: f.bin, Cid: cid})
}

func (f *fileStatic) LoadFile(ctx context.Context, path string) (*cache.Object, bool, error) {
	obj, err := f.store.Load(ctx, path)
	if errors.Is(err, cache.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return obj, true, nil
}

func (f *fileStatic) WriteFile(ctx context.Context, path string, obj *cache.Object) error {
	return f.store.Save(ctx, path, obj)
}

func (f *fileStatic) DeleteFile(ctx context.Context, path string) error {
	return f.store.Remove(ctx, path)
}

func (f *fileStatic) DeleteMatching(ctx context.Context, prefix string, onlyExpired bool) (int, error) {
	now := f.now()
	var doomed []string
	err := f.store.Walk(ctx, f.bin, func(cid, path string) error {
		if !strings.HasPrefix(cid, prefix) {
			return nil
		}
		if onlyExpired {
			obj, ok, err := f.LoadFile(ctx, path)
			if err != nil {
				return err
			}
			if !ok || !cache.ShouldExpire(obj, now) {
				return nil
			}
		}
		doomed = append(doomed, path)
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i, path := range doomed {
		if err := f.DeleteFile(ctx, path); err != nil {
			return i, err
		}
	}
	return len(doomed), nil
}

var errStopWalk = errors.New("stop walk")

func (f *fileStatic) IsEmpty(ctx context.Context) (bool, error) {
	empty := true
	err := f.store.Walk(ctx, f.bin, func(string, string) error {
		empty = false
		return errStopWalk
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return false, err
	}
	return empty, nil
}
