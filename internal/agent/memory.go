package agent

import (
	"context"
	"sync"
)

// MemoryStore 保存各房间的消息记录。
type MemoryStore interface {
	Append(ctx context.Context, mem Memory) error
	// Recent 返回房间内最近的 n 条消息，按时间先后排列。
	Recent(ctx context.Context, roomID string, n int) ([]Memory, error)
}

// RingStore 是每个房间固定容量的内存环形缓冲。
type RingStore struct {
	mu       sync.RWMutex
	capacity int
	rooms    map[string][]Memory
}

var _ MemoryStore = (*RingStore)(nil)

const defaultRoomCapacity = 32

// NewRingStore 创建内存消息存储，capacity<=0 时使用默认容量。
func NewRingStore(capacity int) *RingStore {
	if capacity <= 0 {
		capacity = defaultRoomCapacity
	}
	return &RingStore{capacity: capacity, rooms: make(map[string][]Memory)}
}

// Append 追加消息，超出容量时丢弃最旧的记录。
func (s *RingStore) Append(_ context.Context, mem Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room := append(s.rooms[mem.RoomID], mem)
	if overflow := len(room) - s.capacity; overflow > 0 {
		room = append([]Memory(nil), room[overflow:]...)
	}
	s.rooms[mem.RoomID] = room
	return nil
}

// Recent 实现 MemoryStore。
func (s *RingStore) Recent(_ context.Context, roomID string, n int) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room := s.rooms[roomID]
	if n <= 0 || len(room) == 0 {
		return nil, nil
	}
	if n > len(room) {
		n = len(room)
	}
	return append([]Memory(nil), room[len(room)-n:]...), nil
}
