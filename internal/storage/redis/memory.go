package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ForesightX/internal/agent"
	xerrors "ForesightX/internal/errors"
)

const (
	defaultKeyPrefix = "foresightx:room:"
	defaultCapacity  = 32
)

// MemoryStore 将每个房间的消息保存在一个 Redis list 中，超出容量时裁剪最旧的记录。
type MemoryStore struct {
	client   goredis.Cmdable
	prefix   string
	capacity int
	ttl      time.Duration
}

var _ agent.MemoryStore = (*MemoryStore)(nil)

// Option 配置 MemoryStore。
type Option func(*MemoryStore)

// WithKeyPrefix 修改房间 key 前缀。
func WithKeyPrefix(prefix string) Option {
	return func(s *MemoryStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithCapacity 设置每个房间保留的消息条数。
func WithCapacity(capacity int) Option {
	return func(s *MemoryStore) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithTTL 设置房间闲置后的过期时间，0 表示永不过期。
func WithTTL(ttl time.Duration) Option {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// NewMemoryStore 创建基于 Redis 的房间记忆。
func NewMemoryStore(client goredis.Cmdable, opts ...Option) *MemoryStore {
	s := &MemoryStore{client: client, prefix: defaultKeyPrefix, capacity: defaultCapacity}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Append 实现 agent.MemoryStore。
func (s *MemoryStore) Append(ctx context.Context, mem agent.Memory) error {
	payload, err := encodeMemory(mem)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "编码消息失败")
	}
	key := s.key(mem.RoomID)
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-s.capacity), -1)
		if s.ttl > 0 {
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入房间消息失败")
	}
	return nil
}

// Recent 实现 agent.MemoryStore，按时间先后返回最近 n 条消息。
func (s *MemoryStore) Recent(ctx context.Context, roomID string, n int) ([]agent.Memory, error) {
	if n <= 0 {
		return nil, nil
	}
	values, err := s.client.LRange(ctx, s.key(roomID), int64(-n), -1).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取房间消息失败")
	}
	return decodeMemories(values)
}

func (s *MemoryStore) key(roomID string) string {
	return s.prefix + roomID
}

func encodeMemory(mem agent.Memory) (string, error) {
	raw, err := json.Marshal(mem)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeMemories(values []string) ([]agent.Memory, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]agent.Memory, 0, len(values))
	for i, v := range values {
		var mem agent.Memory
		if err := json.Unmarshal([]byte(v), &mem); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, fmt.Errorf("entry %d: %w", i, err), "解析房间消息失败")
		}
		out = append(out, mem)
	}
	return out, nil
}
