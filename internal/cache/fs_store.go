package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const objectFileExtension = ".json"

// NewStore 以 basePath 为根目录构建静态文件缓存，同一目录下的 Bin 复用一份实例。
func NewStore(basePath string) (Store, error) {
	if basePath == "" {
		return nil, errors.New("cache directory required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	return &fileStore{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// fileStore 通过 entryLock 避免同一文件并发写入，同时复用 basePath。
type fileStore struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func (s *fileStore) Path(locator Locator) (string, error) {
	return s.entryPath(locator)
}

func (s *fileStore) Load(ctx context.Context, filePath string) (*Object, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	info, err := os.Stat(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, ErrNotFound
	}

	raw, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var obj Object
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("decode cache file %s: %w", filePath, err)
	}
	return &obj, nil
}

func (s *fileStore) Save(ctx context.Context, filePath string, obj *Object) error {
	if obj == nil {
		return errors.New("cache object required")
	}
	if err := s.checkInside(filePath); err != nil {
		return err
	}

	unlock := s.lockEntry(filePath)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode cache object: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(filepath.Dir(filePath), ".tmp-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(payload)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, filePath); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *fileStore) Remove(ctx context.Context, filePath string) error {
	if err := s.checkInside(filePath); err != nil {
		return err
	}

	unlock := s.lockEntry(filePath)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *fileStore) Walk(ctx context.Context, bin string, fn func(cid, filePath string) error) error {
	dir, err := s.binDir(bin)
	if err != nil {
		return err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, objectFileExtension) {
			continue
		}
		cid, err := url.PathUnescape(strings.TrimSuffix(name, objectFileExtension))
		if err != nil {
			// 非本 store 写入的文件，直接跳过。
			continue
		}
		if err := fn(cid, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func (s *fileStore) lockEntry(key string) func() {
	s.mu.Lock()
	lock := s.locks[key]
	if lock == nil {
		lock = &entryLock{}
		s.locks[key] = lock
	}
	lock.refs++
	s.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		s.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

func (s *fileStore) binDir(bin string) (string, error) {
	bin = strings.TrimSpace(bin)
	if bin == "" {
		return "", errors.New("bin name required")
	}
	if strings.ContainsAny(bin, `/\`) || bin == "." || bin == ".." {
		return "", fmt.Errorf("invalid bin name: %s", bin)
	}
	return filepath.Join(s.basePath, bin), nil
}

func (s *fileStore) entryPath(locator Locator) (string, error) {
	dir, err := s.binDir(locator.Bin)
	if err != nil {
		return "", err
	}
	if locator.Cid == "" {
		return "", ErrInvalidCid
	}

	// PathEscape 会转义 "/"，加上扩展名后 "." 与 ".." 也不会逃逸目录。
	name := url.PathEscape(locator.Cid) + objectFileExtension
	filePath := filepath.Join(dir, name)
	if filepath.Dir(filePath) != dir {
		return "", ErrInvalidCid
	}
	return filePath, nil
}

func (s *fileStore) checkInside(filePath string) error {
	rel, err := filepath.Rel(s.basePath, filePath)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return errors.New("invalid cache path")
	}
	return nil
}
