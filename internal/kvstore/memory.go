package kvstore

import (
	"context"
	"sync"
)

// MemoryStore はプロセス内のmapに保存するStore。
// 再起動で内容が失われるため、単発のsync実行とテストで使用する。
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryStore はMemoryStoreの新しいインスタンスを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

// Get はキーに対応する値を返す。
func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set はキーに値を保存する。
func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}
