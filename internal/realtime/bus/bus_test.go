package bus

import (
	"context"
	"testing"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/realtime"
)

func TestMemoryBusForwards(t *testing.T) {
	b := NewMemoryBus()
	var got []realtime.SSEMessage
	if err := b.StartForwarder(context.Background(), func(m realtime.SSEMessage) { got = append(got, m) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	msg := realtime.SSEMessage{Channel: "graph:1", Event: realtime.SSEEventGraphProgress}
	if err := b.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Channel != "graph:1" {
		t.Fatalf("forwarded: want=1 got=%v", got)
	}
	_ = b.Close()
	if err := b.Publish(context.Background(), msg); err == nil {
		t.Fatalf("publish after close should fail")
	}
}

func TestNewFallsBackWithoutRedis(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	b := New(logger.Nop())
	if _, ok := b.(*memoryBus); !ok {
		t.Fatalf("bus: want memoryBus got %T", b)
	}
}
