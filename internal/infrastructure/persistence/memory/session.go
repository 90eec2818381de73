package memory

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type expiring struct {
	value     interface{}
	expiresAt time.Time
}

// SessionStore 未启用Redis时使用的会话存储,过期在读取时惰性清理
type SessionStore struct {
	mu   sync.Mutex
	data map[string]expiring
	now  func() time.Time
}

// NewSessionStore 创建内存会话存储
func NewSessionStore() *SessionStore {
	return &SessionStore{data: map[string]expiring{}, now: time.Now}
}

func (s *SessionStore) SaveSession(_ context.Context, userID uint, data map[string]interface{}, ttl time.Duration) error {
	s.set(fmt.Sprintf("session:%d", userID), data, ttl)
	return nil
}

func (s *SessionStore) DeleteSession(_ context.Context, userID uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, fmt.Sprintf("session:%d", userID))
	return nil
}

func (s *SessionStore) AddToBlacklist(_ context.Context, token string, ttl time.Duration) error {
	s.set("blacklist:"+token, "revoked", ttl)
	return nil
}

func (s *SessionStore) IsInBlacklist(_ context.Context, token string) (bool, error) {
	_, ok := s.get("blacklist:" + token)
	return ok, nil
}

// Session 读取会话(测试和调试用)
func (s *SessionStore) Session(userID uint) (map[string]interface{}, bool) {
	v, ok := s.get(fmt.Sprintf("session:%d", userID))
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]interface{})
	return m, ok
}

func (s *SessionStore) set(key string, v interface{}, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = expiring{value: v, expiresAt: s.now().Add(ttl)}
}

func (s *SessionStore) get(key string) (interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return nil, false
	}
	return e.value, true
}
