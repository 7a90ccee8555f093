package cache

import (
	"context"
	"errors"
)

// Store 负责管理静态缓存文件的读写。磁盘布局遵循：
//
//	<CacheDirectory>/<Bin>/<escaped cid>.json    # JSON 编码的 Object
//
// 每个条目仅由一个 JSON 文件组成，路径解析（Path）与读写分离，
// 便于调用方在真正需要时才触达文件系统。
type Store interface {
	// Path 将 Locator 解析为绝对文件路径，不访问文件系统。
	Path(locator Locator) (string, error)

	// Load 读取并解码缓存对象。若文件不存在则返回 ErrNotFound。
	Load(ctx context.Context, filePath string) (*Object, error)

	// Save 写入缓存对象。实现需通过临时文件 + rename 保证写入原子性，并在失败时清理临时文件。
	Save(ctx context.Context, filePath string, obj *Object) error

	// Remove 删除缓存文件，文件不存在时视为成功。
	Remove(ctx context.Context, filePath string) error

	// Walk 遍历某个 Bin 下的全部缓存文件，回调参数为原始 cid 与文件路径。
	Walk(ctx context.Context, bin string, fn func(cid, filePath string) error) error
}

// Locator 唯一定位一个静态缓存条目（Bin + cid）。
type Locator struct {
	Bin string
	Cid string
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidCid 表示 cid 为空或无法映射到安全的文件名。
	ErrInvalidCid = errors.New("invalid cache id")
)
