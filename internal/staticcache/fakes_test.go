package staticcache

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/any-hub/static-cache/internal/cache"
)

// testPolicy 是按测试用例配置的 Provider，并记录各开关被读取的次数。
type testPolicy struct {
	get, add, update, del bool
	whitelist             []string
	ignoreKeys            []string
	fallback              cache.Backend
	fallbackErr           error

	getCalls, addCalls, updateCalls, deleteCalls int
}

func (p *testPolicy) IsGetAllowed() bool { p.getCalls++; return p.get }
func (p *testPolicy) IsAddAllowed() bool { p.addCalls++; return p.add }
func (p *testPolicy) IsUpdateAllowed() bool { p.updateCalls++; return p.update }
func (p *testPolicy) IsDeleteAllowed() bool { p.deleteCalls++; return p.del }

func (p *testPolicy) IsCidWhitelisted(qualified string) bool {
	for _, cid := range p.whitelist {
		if cid == qualified {
			return true
		}
	}
	return false
}

func (p *testPolicy) WhitelistCids() []string { return p.whitelist }

func (p *testPolicy) FallbackCache() (cache.Backend, error) {
	return p.fallback, p.fallbackErr
}

func (p *testPolicy) FallbackCacheClass() string { return "test" }
func (p *testPolicy) UpdateIgnoreKeys() []string { return p.ignoreKeys }
func (p *testPolicy) CacheDirectory() string { return "" }

type setCall struct {
	cid    string
	data   any
	expire cache.Expire
}

type clearCall struct {
	cid      string
	wildcard bool
}

// recordingBackend 是可编程的 fallback，记录收到的每次调用。
type recordingBackend struct {
	values    map[string]*cache.Object
	setResult bool
	empty     bool

	gets     []string
	batches  [][]string
	sets     []setCall
	clears   []clearCall
	emptyHit int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{values: make(map[string]*cache.Object), empty: true}
}

func (b *recordingBackend) Get(_ context.Context, cid string) (*cache.Object, bool, error) {
	b.gets = append(b.gets, cid)
	obj, ok := b.values[cid]
	return obj, ok, nil
}

func (b *recordingBackend) GetMultiple(_ context.Context, cids []string) (map[string]*cache.Object, []string, error) {
	b.batches = append(b.batches, append([]string(nil), cids...))
	found := make(map[string]*cache.Object)
	var missing []string
	for _, cid := range cids {
		if obj, ok := b.values[cid]; ok {
			found[cid] = obj
		} else {
			missing = append(missing, cid)
		}
	}
	return found, missing, nil
}

func (b *recordingBackend) Set(_ context.Context, cid string, data any, expire cache.Expire) (bool, error) {
	b.sets = append(b.sets, setCall{cid: cid, data: data, expire: expire})
	return b.setResult, nil
}

func (b *recordingBackend) Clear(_ context.Context, cid string, wildcard bool) error {
	b.clears = append(b.clears, clearCall{cid: cid, wildcard: wildcard})
	return nil
}

func (b *recordingBackend) IsEmpty(context.Context) (bool, error) {
	b.emptyHit++
	return b.empty, nil
}

// recordingStatic 是内存版 StaticStore，记录路径解析与读写次数。
type recordingStatic struct {
	objects map[string]*cache.Object

	loads      []string
	resolved   []string
	writes     []string
	deletes    []string
	matchCalls []clearCall
}

func newRecordingStatic() *recordingStatic {
	return &recordingStatic{objects: make(map[string]*cache.Object)}
}

func (s *recordingStatic) CacheObjectFromCid(_ context.Context, cid string) (*cache.Object, bool, error) {
	s.loads = append(s.loads, cid)
	obj, ok := s.objects["/static/"+cid]
	return obj, ok, nil
}

func (s *recordingStatic) FilepathFromCid(cid string) (string, error) {
	s.resolved = append(s.resolved, cid)
	return "/static/" + cid, nil
}

func (s *recordingStatic) LoadFile(_ context.Context, path string) (*cache.Object, bool, error) {
	obj, ok := s.objects[path]
	return obj, ok, nil
}

func (s *recordingStatic) WriteFile(_ context.Context, path string, obj *cache.Object) error {
	s.writes = append(s.writes, path)
	s.objects[path] = obj
	return nil
}

func (s *recordingStatic) DeleteFile(_ context.Context, path string) error {
	s.deletes = append(s.deletes, path)
	delete(s.objects, path)
	return nil
}

func (s *recordingStatic) DeleteMatching(_ context.Context, prefix string, onlyExpired bool) (int, error) {
	s.matchCalls = append(s.matchCalls, clearCall{cid: prefix, wildcard: onlyExpired})
	removed := 0
	for path := range s.objects {
		if strings.HasPrefix(strings.TrimPrefix(path, "/static/"), prefix) {
			delete(s.objects, path)
			removed++
		}
	}
	return removed, nil
}

func (s *recordingStatic) IsEmpty(context.Context) (bool, error) {
	return len(s.objects) == 0, nil
}

func rawObject(cid, value string) *cache.Object {
	data, _ := json.Marshal(value)
	return &cache.Object{Cid: cid, Data: data}
}
