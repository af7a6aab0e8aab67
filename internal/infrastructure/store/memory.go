package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore 內存成品儲存，開發與測試用
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore 創建內存儲存
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Write 寫入成品
func (s *MemoryStore) Write(_ context.Context, key ArtifactKey, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key.Path()] = append([]byte(nil), data...)
	return nil
}

// Read 讀取成品
func (s *MemoryStore) Read(_ context.Context, key ArtifactKey) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key.Path()]
	if !ok {
		return nil, ErrArtifactNotFound
	}
	return append([]byte(nil), data...), nil
}

// List 列出任務的所有成品鍵，按路徑排序
func (s *MemoryStore) List(_ context.Context, threadID, taskID string) ([]ArtifactKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := threadID + "/" + taskID + "/"
	var keys []ArtifactKey
	for path := range s.data {
		if strings.HasPrefix(path, prefix) {
			key, err := ParseArtifactPath(path)
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Path() < keys[j].Path() })
	return keys, nil
}

// DeleteTask 刪除任務的所有成品
func (s *MemoryStore) DeleteTask(_ context.Context, threadID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := threadID + "/" + taskID + "/"
	for path := range s.data {
		if strings.HasPrefix(path, prefix) {
			delete(s.data, path)
		}
	}
	return nil
}

// Close 內存儲存無需釋放
func (s *MemoryStore) Close() error {
	return nil
}
