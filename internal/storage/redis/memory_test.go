package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"ForesightX/internal/agent"
)

func TestEncodeDecodeMemory(t *testing.T) {
	mem := agent.Memory{
		ID:     "m1",
		UserID: "alice",
		RoomID: "r1",
		Content: agent.Content{
			Text:   "Successfully created prediction market!",
			Action: "CREATE_PREDICTION_MARKET",
			Fields: map[string]any{"slug": "will_it_rain"},
		},
		Context:   agent.MessageContext{Twitter: &agent.TwitterContext{Username: "alice"}},
		CreatedAt: time.Unix(1700000000, 0).UTC(),
	}
	raw, err := encodeMemory(mem)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeMemories([]string{raw})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Content.Action != "CREATE_PREDICTION_MARKET" || got[0].Content.Fields["slug"] != "will_it_rain" {
		t.Fatalf("unexpected decoded memory %+v", got)
	}
	if got[0].Context.Twitter == nil || !got[0].CreatedAt.Equal(mem.CreatedAt) {
		t.Fatalf("lost context or timestamp: %+v", got[0])
	}

	if _, err := decodeMemories([]string{"{broken"}); err == nil {
		t.Fatalf("expected decode error")
	}
}

// 需要真实 Redis：FORESIGHTX_TEST_REDIS=127.0.0.1:6379
func TestMemoryStoreAgainstRedis(t *testing.T) {
	addr := os.Getenv("FORESIGHTX_TEST_REDIS")
	if addr == "" {
		t.Skip("FORESIGHTX_TEST_REDIS not set")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	prefix := fmt.Sprintf("foresightx:test:%d:", time.Now().UnixNano())
	store := NewMemoryStore(client, WithKeyPrefix(prefix), WithCapacity(3), WithTTL(time.Minute))
	defer client.Del(ctx, prefix+"room")

	for i := 0; i < 5; i++ {
		if err := store.Append(ctx, agent.Memory{ID: fmt.Sprint(i), RoomID: "room", Content: agent.Content{Text: fmt.Sprint("msg ", i)}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	recent, err := store.Recent(ctx, "room", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != "2" || recent[2].ID != "4" {
		t.Fatalf("expected last three messages in order, got %+v", recent)
	}
	last, err := store.Recent(ctx, "room", 1)
	if err != nil || len(last) != 1 || last[0].ID != "4" {
		t.Fatalf("expected newest message, got %+v (%v)", last, err)
	}
}
