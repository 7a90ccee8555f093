// Package redis 提供基于 go-redis 的 fallback，实现跨进程共享的缓存 Bin。
//
// 键布局：<KeyPrefix>:<Bin>:<cid> 保存 JSON 编码的 cache.Object；
// <KeyPrefix>:<Bin>#temporary 是记录临时条目的集合，供通用 Clear 使用。
// 时间戳型过期直接映射为 redis TTL。
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/any-hub/static-cache/internal/cache"
	"github.com/any-hub/static-cache/internal/fallback"
)

const (
	classKey         = "redis"
	defaultKeyPrefix = "static-cache"
	scanBatch        = 200
)

func init() {
	fallback.MustRegister(fallback.Definition{
		Key:         classKey,
		Description: "Redis-backed bin shared across processes",
		Shared:      true,
		New:         newFromOptions,
	})
}

var (
	clientsMu sync.Mutex
	clients   = make(map[string]*goredis.Client)
)

// sharedClient 让同一地址/库的多个 Bin 复用一个连接池。
func sharedClient(ctx context.Context, opts fallback.RedisOptions) (*goredis.Client, error) {
	key := fmt.Sprintf("%s/%d", opts.Addr, opts.DB)

	clientsMu.Lock()
	defer clientsMu.Unlock()

	if client, ok := clients[key]; ok {
		return client, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:        opts.Addr,
		Password:    opts.Password,
		DB:          opts.DB,
		DialTimeout: opts.DialTimeout,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	clients[key] = client
	return client, nil
}

func newFromOptions(opts fallback.Options) (cache.Backend, error) {
	if strings.TrimSpace(opts.Redis.Addr) == "" {
		return nil, errors.New("redis addr required")
	}
	timeout := opts.Redis.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	client, err := sharedClient(ctx, opts.Redis)
	if err != nil {
		return nil, err
	}
	return New(client, opts.Redis.KeyPrefix, opts.Bin, opts.Clock()), nil
}

// Backend 将一个 Bin 映射到 redis 的独立键空间。
type Backend struct {
	client goredis.Cmdable
	prefix string
	bin    string
	now    func() time.Time
}

// New 基于已有客户端构造 Backend，keyPrefix 为空时使用默认前缀。
func New(client goredis.Cmdable, keyPrefix, bin string, now func() time.Time) *Backend {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if now == nil {
		now = time.Now
	}
	return &Backend{client: client, prefix: keyPrefix, bin: bin, now: now}
}

func (b *Backend) Get(ctx context.Context, cid string) (*cache.Object, bool, error) {
	raw, err := b.client.Get(ctx, b.key(cid)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s from redis: %w", cid, err)
	}
	return b.decode(cid, raw)
}

func (b *Backend) GetMultiple(ctx context.Context, cids []string) (map[string]*cache.Object, []string, error) {
	found := make(map[string]*cache.Object, len(cids))
	if len(cids) == 0 {
		return found, nil, nil
	}

	keys := make([]string, len(cids))
	for i, cid := range cids {
		keys[i] = b.key(cid)
	}
	values, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mget from redis: %w", err)
	}

	var missing []string
	for i, cid := range cids {
		raw, ok := values[i].(string)
		if !ok {
			missing = append(missing, cid)
			continue
		}
		obj, hit, err := b.decode(cid, []byte(raw))
		if err != nil {
			return nil, nil, err
		}
		if !hit {
			missing = append(missing, cid)
			continue
		}
		found[cid] = obj
	}
	return found, missing, nil
}

func (b *Backend) Set(ctx context.Context, cid string, data any, expire cache.Expire) (bool, error) {
	if cid == "" {
		return false, cache.ErrInvalidCid
	}
	now := b.now()
	obj, err := cache.NewObject(cid, data, expire, now)
	if err != nil {
		return false, err
	}

	key := b.key(cid)
	var ttl time.Duration
	if remaining, ok := expire.TTL(now); ok {
		if remaining <= 0 {
			// 已过期的写入等价于删除。
			return true, b.client.Del(ctx, key).Err()
		}
		ttl = remaining
	}

	payload, err := json.Marshal(obj)
	if err != nil {
		return false, fmt.Errorf("failed to marshal %s: %w", cid, err)
	}

	_, err = b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, key, payload, ttl)
		if expire.IsTemporary() {
			pipe.SAdd(ctx, b.temporaryKey(), cid)
		} else {
			pipe.SRem(ctx, b.temporaryKey(), cid)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to cache %s: %w", cid, err)
	}
	return true, nil
}

func (b *Backend) Clear(ctx context.Context, cid string, wildcard bool) error {
	switch {
	case cid == "":
		return b.clearTemporary(ctx)
	case cache.IsFlushAll(cid, wildcard):
		if err := b.deleteMatching(ctx, b.binPrefix()+"*"); err != nil {
			return err
		}
		return b.client.Del(ctx, b.temporaryKey()).Err()
	case wildcard:
		return b.deleteMatching(ctx, b.binPrefix()+escapeGlob(cid)+"*")
	default:
		_, err := b.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Del(ctx, b.key(cid))
			pipe.SRem(ctx, b.temporaryKey(), cid)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to delete %s from redis: %w", cid, err)
		}
		return nil
	}
}

func (b *Backend) IsEmpty(ctx context.Context) (bool, error) {
	iter := b.client.Scan(ctx, 0, b.binPrefix()+"*", scanBatch).Iterator()
	if iter.Next(ctx) {
		return false, nil
	}
	if err := iter.Err(); err != nil {
		return false, fmt.Errorf("failed to scan redis: %w", err)
	}
	return true, nil
}

func (b *Backend) clearTemporary(ctx context.Context) error {
	members, err := b.client.SMembers(ctx, b.temporaryKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list temporary entries: %w", err)
	}
	if len(members) == 0 {
		return nil
	}
	keys := make([]string, 0, len(members)+1)
	for _, cid := range members {
		keys = append(keys, b.key(cid))
	}
	keys = append(keys, b.temporaryKey())
	return b.client.Del(ctx, keys...).Err()
}

func (b *Backend) deleteMatching(ctx context.Context, pattern string) error {
	iter := b.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	batch := make([]string, 0, scanBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := b.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanBatch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan redis: %w", err)
	}
	return flush()
}

func (b *Backend) decode(cid string, raw []byte) (*cache.Object, bool, error) {
	var obj cache.Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal %s: %w", cid, err)
	}
	if !obj.Usable(b.now()) {
		return nil, false, nil
	}
	return &obj, true, nil
}

func (b *Backend) binPrefix() string {
	return escapeGlob(b.prefix + ":" + b.bin + ":")
}

func (b *Backend) key(cid string) string {
	return b.prefix + ":" + b.bin + ":" + cid
}

func (b *Backend) temporaryKey() string {
	return b.prefix + ":" + b.bin + "#temporary"
}

// escapeGlob 转义 SCAN MATCH 中的通配字符。
func escapeGlob(s string) string {
	var sb strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
