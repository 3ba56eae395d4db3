package retention

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"movievault/internal/models"
	"movievault/internal/redis"
)

// Tracker holds the outbound messages awaiting deletion.
type Tracker interface {
	Track(ctx context.Context, msg models.TrackedMessage) error
	// Snapshot returns a copy of the tracked set; producers are never blocked
	// by what the caller does with it.
	Snapshot(ctx context.Context) ([]models.TrackedMessage, error)
	Remove(ctx context.Context, msg models.TrackedMessage) error
}

type messageKey struct {
	chatID    int64
	messageID int64
}

// MemoryTracker keeps tracked messages in process memory.
type MemoryTracker struct {
	mu       sync.Mutex
	messages map[messageKey]models.TrackedMessage
}

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{messages: make(map[messageKey]models.TrackedMessage)}
}

func (t *MemoryTracker) Track(_ context.Context, msg models.TrackedMessage) error {
	t.mu.Lock()
	t.messages[messageKey{msg.ChatID, msg.MessageID}] = msg
	t.mu.Unlock()
	return nil
}

func (t *MemoryTracker) Snapshot(_ context.Context) ([]models.TrackedMessage, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.TrackedMessage, 0, len(t.messages))
	for _, m := range t.messages {
		out = append(out, m)
	}
	return out, nil
}

func (t *MemoryTracker) Remove(_ context.Context, msg models.TrackedMessage) error {
	t.mu.Lock()
	delete(t.messages, messageKey{msg.ChatID, msg.MessageID})
	t.mu.Unlock()
	return nil
}

func (t *MemoryTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

// RedisTracker keeps tracked messages in a sorted set scored by send time,
// so they survive restarts.
type RedisTracker struct {
	client *redis.Client
	key    string
}

func NewRedisTracker(client *redis.Client, key string) *RedisTracker {
	if key == "" {
		key = "movievault:tracked_messages"
	}
	return &RedisTracker{client: client, key: key}
}

func (t *RedisTracker) Track(ctx context.Context, msg models.TrackedMessage) error {
	return t.client.ZAdd(ctx, t.key, float64(msg.SentAt.UnixMilli()), encodeMember(msg))
}

func (t *RedisTracker) Snapshot(ctx context.Context) ([]models.TrackedMessage, error) {
	members, err := t.client.ZRange(ctx, t.key)
	if err != nil {
		return nil, fmt.Errorf("read tracked messages: %w", err)
	}
	out := make([]models.TrackedMessage, 0, len(members))
	for _, m := range members {
		msg, ok := decodeMember(m.Member)
		if !ok {
			continue
		}
		msg.SentAt = time.UnixMilli(int64(m.Score)).UTC()
		out = append(out, msg)
	}
	return out, nil
}

func (t *RedisTracker) Remove(ctx context.Context, msg models.TrackedMessage) error {
	return t.client.ZRem(ctx, t.key, encodeMember(msg))
}

func encodeMember(msg models.TrackedMessage) string {
	return strconv.FormatInt(msg.ChatID, 10) + ":" + strconv.FormatInt(msg.MessageID, 10)
}

func decodeMember(s string) (models.TrackedMessage, bool) {
	chat, id, ok := strings.Cut(s, ":")
	if !ok {
		return models.TrackedMessage{}, false
	}
	chatID, err := strconv.ParseInt(chat, 10, 64)
	if err != nil {
		return models.TrackedMessage{}, false
	}
	msgID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return models.TrackedMessage{}, false
	}
	return models.TrackedMessage{ChatID: chatID, MessageID: msgID}, true
}
