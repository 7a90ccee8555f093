package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Backend 是宿主缓存 API 的契约：静态文件装饰器与所有 fallback 实现均满足该接口。
//
// Get 以 (obj, true, nil) 表示命中，(nil, false, nil) 表示未命中或不允许；
// 只有协作方（磁盘、redis）出错时才返回 error。Set 的布尔值语义相同。
type Backend interface {
	Get(ctx context.Context, cid string) (*Object, bool, error)

	// GetMultiple 返回命中的对象（按 cid 索引）以及仍未命中的 cid（保持输入顺序）。
	GetMultiple(ctx context.Context, cids []string) (map[string]*Object, []string, error)

	Set(ctx context.Context, cid string, data any, expire Expire) (bool, error)

	// Clear 的语义：cid 为空时清理临时与已过期条目；wildcard 且 cid 为 "*" 时清空整个 Bin；
	// wildcard 且 cid 非空时按前缀删除；否则删除单个条目。
	Clear(ctx context.Context, cid string, wildcard bool) error

	IsEmpty(ctx context.Context) (bool, error)
}

// Expire 描述缓存对象的过期标记：Permanent、Temporary 或 unix 时间戳。
type Expire int64

const (
	// Permanent 表示只有显式 Clear 才会移除。
	Permanent Expire = 0
	// Temporary 表示在下一次通用 Clear（cid 为空）时移除。
	Temporary Expire = -1
)

// ExpireAt 将绝对时间转换为过期时间戳。
func ExpireAt(t time.Time) Expire {
	return Expire(t.Unix())
}

// IsTemporary 报告条目是否为临时条目。
func (e Expire) IsTemporary() bool {
	return e == Temporary
}

// Expired 报告时间戳型条目在 now 时是否已经过期；Permanent/Temporary 永远返回 false。
func (e Expire) Expired(now time.Time) bool {
	return e > 0 && now.Unix() >= int64(e)
}

// TTL 返回距离过期的剩余时长；非时间戳型条目返回 false。
func (e Expire) TTL(now time.Time) (time.Duration, bool) {
	if e <= 0 {
		return 0, false
	}
	return time.Unix(int64(e), 0).Sub(now), true
}

// Object 是存储在静态文件或 fallback 中的缓存对象，Data 原样透传。
type Object struct {
	Cid     string          `json:"cid"`
	Data    json.RawMessage `json:"data"`
	Created time.Time       `json:"created"`
	Expire  Expire          `json:"expire"`
}

// NewObject 将任意数据编码为 Object；json.RawMessage 会被原样保留。
func NewObject(cid string, data any, expire Expire, now time.Time) (*Object, error) {
	var raw json.RawMessage
	switch v := data.(type) {
	case json.RawMessage:
		raw = append(json.RawMessage(nil), v...)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode cache data for %s: %w", cid, err)
		}
		raw = encoded
	}
	return &Object{
		Cid:     cid,
		Data:    raw,
		Created: now.UTC(),
		Expire:  expire,
	}, nil
}

// Decode 将 Data 解码到 v。
func (o *Object) Decode(v any) error {
	if o == nil {
		return ErrNotFound
	}
	return json.Unmarshal(o.Data, v)
}

// Usable 报告对象在 now 时是否仍可返回给调用方。
func (o *Object) Usable(now time.Time) bool {
	return o != nil && !o.Expire.Expired(now)
}

// IsFlushAll 报告 Clear 参数是否表示清空整个 Bin。
func IsFlushAll(cid string, wildcard bool) bool {
	return wildcard && cid == "*"
}

// MatchesClear 报告 candidate 是否落在一次 Clear(cid, wildcard) 的删除范围内。
// 通用清理（cid 为空）不按 cid 匹配，由调用方结合 Expire 判断。
func MatchesClear(candidate, cid string, wildcard bool) bool {
	switch {
	case cid == "":
		return false
	case IsFlushAll(cid, wildcard):
		return true
	case wildcard:
		return strings.HasPrefix(candidate, cid)
	default:
		return candidate == cid
	}
}

// ShouldExpire 报告通用清理（cid 为空）时对象是否需要被移除。
func ShouldExpire(obj *Object, now time.Time) bool {
	if obj == nil {
		return false
	}
	return obj.Expire.IsTemporary() || obj.Expire.Expired(now)
}
