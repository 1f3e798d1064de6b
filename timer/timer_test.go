package timer

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newStartedService(t *testing.T) *Service {
	t.Helper()
	s := New()
	s.Start()
	t.Cleanup(s.StopSync)
	return s
}

func TestAddTimeoutFires(t *testing.T) {
	s := newStartedService(t)
	done := make(chan struct{})
	_, err := s.AddTimeout(AddTimeoutParams{
		Deadline: time.Now().Add(10 * time.Millisecond),
		Callback: func(any) { close(done) },
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
}

func TestPastDeadlineFiresImmediately(t *testing.T) {
	s := newStartedService(t)
	done := make(chan struct{})
	_, err := s.AddTimeout(AddTimeoutParams{
		Deadline: time.Now().Add(-time.Hour),
		Callback: func(any) { close(done) },
	})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("past-deadline timeout should fire on next loop iteration")
	}
}

func TestCancelThenCancelAgainReturnsNotFound(t *testing.T) {
	s := newStartedService(t)
	h, err := s.AddTimeout(AddTimeoutParams{
		Deadline: time.Now().Add(time.Hour),
		Callback: func(any) {},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Cancel(h); err != nil {
		t.Fatalf("first cancel: %v", err)
	}
	if err := s.Cancel(h); err != ErrNotFound {
		t.Fatalf("second cancel = %v, want ErrNotFound", err)
	}
}

func TestIntervalWithCountOneFiresOnceAndAutoRemoves(t *testing.T) {
	s := newStartedService(t)
	var fires atomic.Int32
	done := make(chan struct{})
	_, err := s.AddInterval(AddIntervalParams{
		BaseTime: time.Now().Add(5 * time.Millisecond),
		Period:   5 * time.Millisecond,
		Count:    1,
		Callback: func(any) {
			fires.Add(1)
			close(done)
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	<-done
	time.Sleep(50 * time.Millisecond)
	if n := fires.Load(); n != 1 {
		t.Fatalf("fires = %d, want exactly 1", n)
	}
}

func TestIntervalWithCountZeroFiresRepeatedly(t *testing.T) {
	s := newStartedService(t)
	var fires atomic.Int32
	_, err := s.AddInterval(AddIntervalParams{
		BaseTime: time.Now().Add(5 * time.Millisecond),
		Period:   5 * time.Millisecond,
		Count:    0,
		Callback: func(any) { fires.Add(1) },
	})
	if err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond)
	if fires.Load() < 3 {
		t.Fatalf("expected repeated fires, got %d", fires.Load())
	}
}

// TestRescheduleFromOwnCallback: a one-shot timer's callback opens
// another timer's handle and pulls its deadline forward, and the
// rescheduled timer fires promptly afterward.
func TestRescheduleFromOwnCallback(t *testing.T) {
	s := newStartedService(t)

	t2Fired := make(chan time.Time, 1)
	h2, err := s.AddTimeout(AddTimeoutParams{
		Deadline: time.Now().Add(500 * time.Millisecond),
		Callback: func(any) { t2Fired <- time.Now() },
	})
	if err != nil {
		t.Fatal(err)
	}

	var rescheduleAt time.Time
	var mu sync.Mutex
	_, err = s.AddTimeout(AddTimeoutParams{
		Deadline: time.Now().Add(10 * time.Millisecond),
		Callback: func(any) {
			p := s.Open(h2)
			if p == nil {
				t.Error("t2 handle should still be open")
				return
			}
			mu.Lock()
			rescheduleAt = time.Now()
			mu.Unlock()
			p.SetDeadline(time.Now().Add(time.Millisecond))
			s.Close(p)
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case firedAt := <-t2Fired:
		mu.Lock()
		defer mu.Unlock()
		if firedAt.Sub(rescheduleAt) > 20*time.Millisecond {
			t.Fatalf("t2 fired %v after reschedule, want within 20ms", firedAt.Sub(rescheduleAt))
		}
	case <-time.After(time.Second):
		t.Fatal("t2 never fired after being rescheduled")
	}
}

func TestLatestTracksRootDeadline(t *testing.T) {
	s := newStartedService(t)

	early := time.Now().Add(time.Hour)
	late := time.Now().Add(2 * time.Hour)

	hLate, err := s.AddTimeout(AddTimeoutParams{Deadline: late, Callback: func(any) {}})
	if err != nil {
		t.Fatal(err)
	}
	hEarly, err := s.AddTimeout(AddTimeoutParams{Deadline: early, Callback: func(any) {}})
	if err != nil {
		t.Fatal(err)
	}

	if got := s.Latest(); got != early.UnixNano() {
		t.Fatalf("Latest() = %d, want the earlier deadline %d", got, early.UnixNano())
	}
	if err := s.Cancel(hEarly); err != nil {
		t.Fatal(err)
	}
	if got := s.Latest(); got != late.UnixNano() {
		t.Fatalf("Latest() after cancel = %d, want %d", got, late.UnixNano())
	}
	if err := s.Cancel(hLate); err != nil {
		t.Fatal(err)
	}
	if got := s.Latest(); got != 0 {
		t.Fatalf("Latest() on empty heap = %d, want 0", got)
	}
}

func TestCancelDuringFireNeverRunsAndReportsSuccess_OrAlreadyRanAndNotFound(t *testing.T) {
	s := newStartedService(t)
	ran := make(chan struct{})
	h, err := s.AddTimeout(AddTimeoutParams{
		Deadline: time.Now().Add(time.Millisecond),
		Callback: func(any) { close(ran) },
	})
	if err != nil {
		t.Fatal(err)
	}

	err = s.Cancel(h)
	switch err {
	case nil:
		// Cancel won the race: the callback must never run.
		select {
		case <-ran:
			t.Fatal("Cancel returned success but the callback still ran")
		case <-time.After(50 * time.Millisecond):
		}
	case ErrNotFound:
		// The callback won the race: it must already have run (or be
		// about to, imminently) since the node was already popped.
		select {
		case <-ran:
		case <-time.After(time.Second):
			t.Fatal("Cancel returned ErrNotFound but the callback never ran")
		}
	default:
		t.Fatalf("Cancel returned unexpected error: %v", err)
	}
}
