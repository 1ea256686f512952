package eventbus

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryBusOrdering(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	for _, name := range []string{"A", "B", "C"} {
		bus.Push("s1", NewEvent("chain_step", map[string]any{"name": name}))
	}

	ctx := context.Background()
	for _, want := range []string{"A", "B", "C"} {
		event, ok := bus.Poll(ctx, "s1", time.Second)
		if !ok {
			t.Fatalf("期望取到事件 %s", want)
		}
		if got := event.Data["name"]; got != want {
			t.Fatalf("事件顺序错乱: got %v, want %s", got, want)
		}
	}
}

func TestMemoryBusSessionIsolation(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	bus.Push("s1", NewEvent("fast_path_start", nil))

	if _, ok := bus.Poll(context.Background(), "s2", 50*time.Millisecond); ok {
		t.Fatal("s2 不应收到 s1 的事件")
	}
	if _, ok := bus.Poll(context.Background(), "s1", time.Second); !ok {
		t.Fatal("s1 应收到自己的事件")
	}
}

func TestMemoryBusPollTimeout(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	start := time.Now()
	_, ok := bus.Poll(context.Background(), "s1", 50*time.Millisecond)
	if ok {
		t.Fatal("空会话不应取到事件")
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Fatal("Poll 未等待到超时")
	}
}

func TestMemoryBusHistoryEviction(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	for i := 0; i < HistoryCapacity+1; i++ {
		bus.Push("s1", NewEvent("chain_step", map[string]any{"seq": i}))
	}

	history := bus.History("s1")
	if len(history) != HistoryCapacity {
		t.Fatalf("历史长度 = %d, 期望 %d", len(history), HistoryCapacity)
	}
	if history[0].Data["seq"] != 1 {
		t.Fatalf("最旧事件 seq = %v, 期望 0 已被淘汰", history[0].Data["seq"])
	}
	if history[len(history)-1].Data["seq"] != HistoryCapacity {
		t.Fatalf("最新事件 seq = %v", history[len(history)-1].Data["seq"])
	}
}

func TestMemoryBusDropsInvalidEvent(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	bus.Push("s1", Event{Type: "   "})

	if len(bus.History("s1")) != 0 {
		t.Fatal("非法事件不应进入历史")
	}
	if _, ok := bus.Poll(context.Background(), "s1", 50*time.Millisecond); ok {
		t.Fatal("非法事件不应投递")
	}
}

func TestMemoryBusNeverBlocksWhenFull(t *testing.T) {
	bus := NewMemoryBus(WithChannelSize(2))
	defer bus.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Push("s1", NewEvent("chain_step", map[string]any{"seq": i}))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Push 在通道已满时阻塞了")
	}

	// 通道容量为 2，只有最早的两条在途；历史仍然完整。
	if len(bus.History("s1")) != 10 {
		t.Fatalf("历史长度 = %d, 期望 10", len(bus.History("s1")))
	}
	event, ok := bus.Poll(context.Background(), "s1", time.Second)
	if !ok || event.Data["seq"] != 0 {
		t.Fatalf("首条在途事件 = %v", event.Data)
	}
}

func TestMemoryBusClearHistoryAndDispose(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	bus.Push("s1", NewEvent("operation_done", nil))
	bus.ClearHistory("s1")
	if len(bus.History("s1")) != 0 {
		t.Fatal("清空后历史应为空")
	}
	// 在途事件不受 ClearHistory 影响。
	if _, ok := bus.Poll(context.Background(), "s1", time.Second); !ok {
		t.Fatal("在途事件应仍可消费")
	}

	bus.Dispose("s1")
	if len(bus.History("s1")) != 0 {
		t.Fatal("Dispose 后不应有历史")
	}
}

func TestMemoryBusConcurrentSessions(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()

	const perSession = 20
	donePush := make(chan struct{})
	go func() {
		for i := 0; i < perSession; i++ {
			bus.Push("a", NewEvent("chain_step", map[string]any{"seq": i}))
			bus.Push("b", NewEvent("chain_step", map[string]any{"seq": i}))
		}
		close(donePush)
	}()

	readAll := func(sessionID string) error {
		for i := 0; i < perSession; i++ {
			event, ok := bus.Poll(context.Background(), sessionID, time.Second)
			if !ok {
				return fmt.Errorf("会话 %s 第 %d 条事件缺失", sessionID, i)
			}
			if event.Data["seq"] != i {
				return fmt.Errorf("会话 %s 顺序错乱: got %v, want %d", sessionID, event.Data["seq"], i)
			}
		}
		return nil
	}

	errCh := make(chan error, 2)
	go func() { errCh <- readAll("a") }()
	go func() { errCh <- readAll("b") }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatal(err)
		}
	}
	<-donePush
}
