package blob

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for local runs and tests. It
// mirrors the conditional-write semantics of the S3 backend, including
// quoted content-hash ETags.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
}

type memObject struct {
	body     []byte
	etag     string
	modified time.Time
}

// NewMemory creates an empty in-process store.
func NewMemory() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memObject)}
}

func contentETag(body []byte) string {
	sum := md5.Sum(body)
	return `"` + hex.EncodeToString(sum[:]) + `"`
}

func (m *MemoryStore) info(key string, obj memObject) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		ETag:         obj.etag,
		Size:         int64(len(obj.body)),
		LastModified: obj.modified,
	}
}

func (m *MemoryStore) write(key string, body []byte) ObjectInfo {
	obj := memObject{
		body:     append([]byte(nil), body...),
		etag:     contentETag(body),
		modified: time.Now().UTC(),
	}
	m.objects[key] = obj
	return m.info(key, obj)
}

// Put writes the object unconditionally.
func (m *MemoryStore) Put(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.write(key, body), nil
}

// PutIfAbsent writes only when the key is empty.
func (m *MemoryStore) PutIfAbsent(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return ObjectInfo{}, ErrPreconditionFailed
	}
	return m.write(key, body), nil
}

// PutIfMatch writes only when the stored ETag equals etag.
func (m *MemoryStore) PutIfMatch(ctx context.Context, key string, body []byte, etag string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	if obj.etag != etag {
		return ObjectInfo{}, ErrPreconditionFailed
	}
	return m.write(key, body), nil
}

// Get reads the object.
func (m *MemoryStore) Get(ctx context.Context, key string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return Object{}, ErrNotFound
	}
	return Object{
		ObjectInfo: m.info(key, obj),
		Body:       append([]byte(nil), obj.body...),
	}, nil
}

// Head reads object metadata.
func (m *MemoryStore) Head(ctx context.Context, key string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	if !ok {
		return ObjectInfo{}, ErrNotFound
	}
	return m.info(key, obj), nil
}

// List returns objects under prefix in ascending key order.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var infos []ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			infos = append(infos, m.info(key, obj))
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Delete removes the object if present.
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Len reports the number of stored objects. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
