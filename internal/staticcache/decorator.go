package staticcache

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/static-cache/internal/cache"
	"github.com/any-hub/static-cache/internal/config"
	"github.com/any-hub/static-cache/internal/logging"
)

var _ cache.Backend = (*Decorator)(nil)

// Decorator 在单个 Bin 上把缓存操作路由到静态文件或 fallback。
type Decorator struct {
	bin     string
	policy  Provider
	static  StaticStore
	logger  *logrus.Entry
	metrics *Metrics
	now     func() time.Time
}

// Option 调整 Decorator 的协作方。
type Option func(*Decorator)

// WithPolicy 注入 Provider，必填。
func WithPolicy(p Provider) Option {
	return func(d *Decorator) { d.policy = p }
}

// WithStaticStore 注入静态文件路径；未设置时按 Provider.CacheDirectory 创建磁盘存储。
func WithStaticStore(s StaticStore) Option {
	return func(d *Decorator) { d.static = s }
}

func WithLogger(logger *logrus.Logger) Option {
	return func(d *Decorator) { d.logger = logging.ForBin(logger, d.bin) }
}

func WithMetrics(m *Metrics) Option {
	return func(d *Decorator) { d.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(d *Decorator) {
		if now != nil {
			d.now = now
		}
	}
}

// New 为 bin 构造装饰器。
func New(bin string, opts ...Option) (*Decorator, error) {
	if bin == "" {
		return nil, fmt.Errorf("bin name required")
	}
	d := &Decorator{bin: bin, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	if d.policy == nil {
		return nil, ErrNoPolicy
	}
	if d.logger == nil {
		d.logger = logging.ForBin(nil, bin)
	}
	if d.static == nil {
		store, err := cache.NewStore(d.policy.CacheDirectory())
		if err != nil {
			return nil, fmt.Errorf("bin %s: %w", bin, err)
		}
		d.static = NewFileStatic(bin, store, d.now)
	}
	return d, nil
}

// NewFromConfig 使用配置中名为 name 的 Bin 构造装饰器。
func NewFromConfig(cfg *config.Config, name string, opts ...Option) (*Decorator, error) {
	settings, err := settingsFor(cfg, name)
	if err != nil {
		return nil, err
	}
	d := &Decorator{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	settings.WithClock(d.now)
	return New(name, append([]Option{WithPolicy(settings)}, opts...)...)
}

// Bin 返回装饰器绑定的 Bin 名称。
func (d *Decorator) Bin() string { return d.bin }

// Policy 返回装饰器使用的 Provider。
func (d *Decorator) Policy() Provider { return d.policy }

// QualifiedCid 返回白名单使用的完整形式 <bin>-<cid>。
func (d *Decorator) QualifiedCid(cid string) string {
	return d.bin + "-" + cid
}

func (d *Decorator) whitelisted(cid string) bool {
	return d.policy.IsCidWhitelisted(d.QualifiedCid(cid))
}

func (d *Decorator) Get(ctx context.Context, cid string) (*cache.Object, bool, error) {
	if d.whitelisted(cid) {
		if !d.policy.IsGetAllowed() {
			d.route(opGet, cid, routeDenied)
			return nil, false, nil
		}
		d.route(opGet, cid, routeStatic)
		obj, ok, err := d.static.CacheObjectFromCid(ctx, cid)
		if err != nil {
			d.fail(opGet, cid, err)
		}
		return obj, ok, err
	}

	fb, err := d.fallbackCache(opGet)
	if err != nil {
		return nil, false, err
	}
	d.route(opGet, cid, routeFallback)
	obj, ok, err := fb.Get(ctx, cid)
	if err != nil {
		d.fail(opGet, cid, err)
	}
	return obj, ok, err
}

func (d *Decorator) GetMultiple(ctx context.Context, cids []string) (map[string]*cache.Object, []string, error) {
	found := make(map[string]*cache.Object, len(cids))
	var rest []string
	for _, cid := range cids {
		if !d.whitelisted(cid) {
			rest = append(rest, cid)
			continue
		}
		obj, ok, err := d.Get(ctx, cid)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			found[cid] = obj
		}
	}

	if len(rest) > 0 {
		fb, err := d.fallbackCache(opGetMultiple)
		if err != nil {
			return nil, nil, err
		}
		d.route(opGetMultiple, "", routeFallback)
		hits, _, err := fb.GetMultiple(ctx, rest)
		if err != nil {
			d.fail(opGetMultiple, "", err)
			return nil, nil, err
		}
		for cid, obj := range hits {
			found[cid] = obj
		}
	}

	var missing []string
	for _, cid := range cids {
		if _, ok := found[cid]; !ok {
			missing = append(missing, cid)
		}
	}
	return found, missing, nil
}

func (d *Decorator) Set(ctx context.Context, cid string, data any, expire cache.Expire) (bool, error) {
	if !d.whitelisted(cid) {
		fb, err := d.fallbackCache(opSet)
		if err != nil {
			return false, err
		}
		d.route(opSet, cid, routeFallback)
		stored, err := fb.Set(ctx, cid, data, expire)
		if err != nil {
			d.fail(opSet, cid, err)
		}
		return stored, err
	}

	updateAllowed := d.policy.IsUpdateAllowed()
	addAllowed := d.policy.IsAddAllowed()
	if !updateAllowed && !addAllowed {
		d.route(opSet, cid, routeDenied)
		return false, nil
	}

	stored, err := d.writeStatic(ctx, cid, data, expire, addAllowed, updateAllowed)
	if err != nil {
		d.fail(opSet, cid, err)
	}
	return stored, err
}

func (d *Decorator) writeStatic(ctx context.Context, cid string, data any, expire cache.Expire, addAllowed, updateAllowed bool) (bool, error) {
	path, err := d.static.FilepathFromCid(cid)
	if err != nil {
		return false, err
	}

	now := d.now()
	incoming, err := cache.NewObject(cid, data, expire, now)
	if err != nil {
		return false, err
	}

	existing, ok, err := d.static.LoadFile(ctx, path)
	if err != nil {
		return false, err
	}
	if !ok || !existing.Usable(now) {
		existing = nil
	}

	mode, err := cache.Classify(existing, incoming, d.policy.UpdateIgnoreKeys())
	if err != nil {
		return false, err
	}
	switch {
	case mode == cache.WriteUnchanged:
		d.route(opSet, cid, routeStatic)
		return true, nil
	case mode == cache.WriteAdd && !addAllowed, mode == cache.WriteUpdate && !updateAllowed:
		d.route(opSet, cid, routeDenied)
		d.logger.WithField("mode", string(mode)).Debug("static write not allowed")
		return false, nil
	}

	d.route(opSet, cid, routeStatic)
	if err := d.static.WriteFile(ctx, path, incoming); err != nil {
		return false, err
	}
	return true, nil
}

func (d *Decorator) Clear(ctx context.Context, cid string, wildcard bool) error {
	if cid != "" && !wildcard {
		if d.whitelisted(cid) {
			return d.clearStatic(ctx, cid)
		}
		return d.clearFallback(ctx, cid, wildcard)
	}

	if err := d.clearFallback(ctx, cid, wildcard); err != nil {
		return err
	}
	if !d.policy.IsDeleteAllowed() {
		return nil
	}

	prefix, onlyExpired := cid, false
	switch {
	case cid == "":
		onlyExpired = true
	case cache.IsFlushAll(cid, wildcard):
		prefix = ""
	}
	removed, err := d.static.DeleteMatching(ctx, prefix, onlyExpired)
	if err != nil {
		d.fail(opClear, cid, err)
		return err
	}
	d.route(opClear, cid, routeStatic)
	d.logger.WithField("removed", removed).Debug("static files cleared")
	return nil
}

func (d *Decorator) clearStatic(ctx context.Context, cid string) error {
	if !d.policy.IsDeleteAllowed() {
		d.route(opClear, cid, routeDenied)
		return nil
	}
	path, err := d.static.FilepathFromCid(cid)
	if err == nil {
		err = d.static.DeleteFile(ctx, path)
	}
	if err != nil {
		d.fail(opClear, cid, err)
		return err
	}
	d.route(opClear, cid, routeStatic)
	return nil
}

func (d *Decorator) clearFallback(ctx context.Context, cid string, wildcard bool) error {
	fb, err := d.fallbackCache(opClear)
	if err != nil {
		return err
	}
	d.route(opClear, cid, routeFallback)
	if err := fb.Clear(ctx, cid, wildcard); err != nil {
		d.fail(opClear, cid, err)
		return err
	}
	return nil
}

func (d *Decorator) IsEmpty(ctx context.Context) (bool, error) {
	fb, err := d.fallbackCache(opIsEmpty)
	if err != nil {
		return false, err
	}
	empty, err := fb.IsEmpty(ctx)
	if err != nil || !empty {
		if err != nil {
			d.fail(opIsEmpty, "", err)
		}
		return false, err
	}
	empty, err = d.static.IsEmpty(ctx)
	if err != nil {
		d.fail(opIsEmpty, "", err)
		return false, err
	}
	return empty, nil
}

func (d *Decorator) fallbackCache(op string) (cache.Backend, error) {
	fb, err := d.policy.FallbackCache()
	if err != nil {
		d.fail(op, "", err)
		return nil, fmt.Errorf("bin %s fallback: %w", d.bin, err)
	}
	return fb, nil
}

func (d *Decorator) route(op, cid, route string) {
	d.metrics.observe(d.bin, op, route)
	d.logger.WithFields(logging.RouteFields(d.bin, op, cid, route)).Debug("cache route")
}

func (d *Decorator) fail(op, cid string, err error) {
	d.metrics.observeError(d.bin, op)
	fields := logging.RouteFields(d.bin, op, cid, "")
	delete(fields, "route")
	d.logger.WithFields(fields).WithError(err).Warn("cache operation failed")
}
