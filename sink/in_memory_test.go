package sink

import (
	"sync"
	"testing"

	"github.com/hupe1980/agentcore/core"
)

func TestInMemoryEmitAndEvents(t *testing.T) {
	s := NewInMemory()

	if err := s.Emit("u1", core.EventStarted, core.EventPayload{AgentName: "a"}); err != nil {
		t.Fatalf("Emit error: %v", err)
	}
	if err := s.Emit("u2", core.EventCompleted, core.EventPayload{AgentName: "b"}); err != nil {
		t.Fatalf("Emit error: %v", err)
	}

	if got := len(s.Events("u1")); got != 1 {
		t.Fatalf("u1 events = %d, want 1", got)
	}
	if got := len(s.Events("u2")); got != 1 {
		t.Fatalf("u2 events = %d, want 1", got)
	}
	if got := len(s.Users()); got != 2 {
		t.Fatalf("Users = %d, want 2", got)
	}

	// Returned slice is a copy.
	events := s.Events("u1")
	events[0].Payload.AgentName = "mutated"
	if s.Events("u1")[0].Payload.AgentName != "a" {
		t.Fatal("Events must return a defensive copy")
	}
}

func TestInMemoryConcurrentEmit(t *testing.T) {
	s := NewInMemory()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Emit("u1", core.EventThinking, core.EventPayload{})
			}
		}()
	}
	wg.Wait()

	if got := len(s.Events("u1")); got != 1000 {
		t.Fatalf("events = %d, want 1000", got)
	}
}

func TestInMemoryReset(t *testing.T) {
	s := NewInMemory()
	_ = s.Emit("u1", core.EventStarted, core.EventPayload{})
	s.Reset()
	if got := len(s.Events("u1")); got != 0 {
		t.Fatalf("events after reset = %d, want 0", got)
	}
}
