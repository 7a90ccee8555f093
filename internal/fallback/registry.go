package fallback

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/any-hub/static-cache/internal/cache"
)

const defaultClass = "memory"

// ErrUnknownClass 表示请求的 fallback class 未注册。
var ErrUnknownClass = errors.New("fallback class not registered")

// Options 描述构造某个 Bin 的 fallback 实例所需的参数。
type Options struct {
	Bin   string
	Redis RedisOptions
	// Now 允许测试注入时钟，为空时使用 time.Now。
	Now func() time.Time
}

// RedisOptions 仅由 redis class 使用。
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	DialTimeout time.Duration
}

// Clock 返回 Options 中注入的时钟。
func (o Options) Clock() func() time.Time {
	if o.Now != nil {
		return o.Now
	}
	return time.Now
}

// Factory 为单个 Bin 构造 fallback 实例。
type Factory func(opts Options) (cache.Backend, error)

// Definition 记录一个 fallback class 的静态信息，供配置校验和诊断端使用。
type Definition struct {
	Key         string
	Description string
	// Shared 表示数据跨进程共享（例如 redis），诊断端据此提示部署方式。
	Shared bool
	New    Factory
}

// DefaultClass 返回未配置 FallbackClass 时使用的 class。
func DefaultClass() string {
	return defaultClass
}

var globalRegistry = newRegistry()

type registry struct {
	mu          sync.RWMutex
	definitions map[string]Definition
}

func newRegistry() *registry {
	return &registry{definitions: make(map[string]Definition)}
}

// Register 将 fallback 定义加入全局注册表，重复键会返回错误。
func Register(def Definition) error {
	return globalRegistry.register(def)
}

// MustRegister 在注册失败时 panic，适合实现包 init() 中调用。
func MustRegister(def Definition) {
	if err := Register(def); err != nil {
		panic(err)
	}
}

// Resolve 返回指定 class 的定义。
func Resolve(key string) (Definition, bool) {
	return globalRegistry.resolve(key)
}

// List 返回按键排序的定义列表。
func List() []Definition {
	return globalRegistry.list()
}

// Keys 返回所有已注册 class 的键值，供配置报错或诊断使用。
func Keys() []string {
	items := List()
	result := make([]string, len(items))
	for i, def := range items {
		result[i] = def.Key
	}
	return result
}

// New 按 class 构造一个 fallback 实例。
func New(key string, opts Options) (cache.Backend, error) {
	def, ok := Resolve(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, key)
	}
	backend, err := def.New(opts)
	if err != nil {
		return nil, fmt.Errorf("fallback %s for bin %s: %w", def.Key, opts.Bin, err)
	}
	return backend, nil
}

func (r *registry) normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(def Definition) error {
	key := r.normalizeKey(def.Key)
	if key == "" {
		return fmt.Errorf("fallback class key is required")
	}
	if def.New == nil {
		return fmt.Errorf("fallback class %s has no factory", key)
	}
	def.Key = key

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.definitions[key]; exists {
		return fmt.Errorf("fallback class %s already registered", key)
	}
	r.definitions[key] = def
	return nil
}

func (r *registry) resolve(key string) (Definition, bool) {
	normalized := r.normalizeKey(key)
	if normalized == "" {
		return Definition{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.definitions[normalized]
	return def, ok
}

func (r *registry) list() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.definitions) == 0 {
		return nil
	}

	keys := make([]string, 0, len(r.definitions))
	for key := range r.definitions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	result := make([]Definition, 0, len(keys))
	for _, key := range keys {
		result = append(result, r.definitions[key])
	}
	return result
}
