package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultSessionTTL 会话歌单在最后一次写入后的保留时间
const DefaultSessionTTL = 24 * time.Hour

// SessionPlaylistKey 会话歌单的Redis键
func SessionPlaylistKey(sessionID string) string {
	return fmt.Sprintf("session:%s:playlist", sessionID)
}

// SessionStore 基于Redis的会话歌单存储，每次写入刷新过期时间。
// 多个标签页共享同一会话时后写覆盖先写。
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore ttl <= 0 时使用 DefaultSessionTTL
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{client: client, ttl: ttl}
}

func (s *SessionStore) Load(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := s.client.Get(ctx, SessionPlaylistKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session playlist: %w", err)
	}
	return data, nil
}

func (s *SessionStore) Save(ctx context.Context, sessionID string, data []byte) error {
	if err := s.client.Set(ctx, SessionPlaylistKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save session playlist: %w", err)
	}
	return nil
}

func (s *SessionStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, SessionPlaylistKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session playlist: %w", err)
	}
	return nil
}
