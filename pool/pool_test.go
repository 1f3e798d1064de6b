package pool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestAddRunsOnWorker(t *testing.T) {
	p := New(4)
	defer func() {
		p.Shutdown()
		p.Free()
	}()

	done := make(chan struct{})
	p.Add(func(data any) {
		if data.(string) != "hello" {
			t.Error("wrong data delivered")
		}
		close(done)
	}, "hello")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("work item never ran")
	}
}

func TestManyItemsAllRunExactlyOnce(t *testing.T) {
	p := New(8)
	defer func() {
		p.Shutdown()
		p.Free()
	}()

	const n = 2000
	var count atomic.Int64
	for i := 0; i < n; i++ {
		p.Add(func(any) { count.Add(1) }, nil)
	}

	deadline := time.Now().Add(2 * time.Second)
	for count.Load() != n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := count.Load(); got != n {
		t.Fatalf("ran %d items, want %d", got, n)
	}
}

func TestTryWorkNonBlockingWhenEmpty(t *testing.T) {
	p := New(1)
	defer func() {
		p.Shutdown()
		p.Free()
	}()
	if p.TryWork() {
		t.Fatal("TryWork reported work on an empty pool")
	}
}

func TestShutdownThenFreeReturns(t *testing.T) {
	p := New(4)
	p.Shutdown()
	done := make(chan struct{})
	go func() {
		p.Free()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Free never returned after Shutdown")
	}
}
