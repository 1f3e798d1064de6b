package aflags

import (
	"sync"
	"testing"
)

func TestSetClearTest(t *testing.T) {
	var w Word
	const (
		flagA uint64 = 1 << iota
		flagB
		flagC
	)

	if w.Test(flagA) {
		t.Fatal("flagA should not be set initially")
	}
	w.Set(flagA)
	if !w.Test(flagA) {
		t.Fatal("flagA should be set")
	}
	if w.Test(flagB) {
		t.Fatal("flagB should not be set")
	}
	w.Set(flagB | flagC)
	if !w.Test(flagB | flagC) {
		t.Fatal("flagB|flagC should be set")
	}
	w.Clear(flagB)
	if w.Test(flagB) {
		t.Fatal("flagB should be cleared")
	}
	if !w.Test(flagA | flagC) {
		t.Fatal("flagA and flagC should remain set")
	}
}

func TestSetOnceSerializesSingleTransition(t *testing.T) {
	var w Word
	const confirmedFree uint64 = 1

	var wg sync.WaitGroup
	wins := make(chan bool, 2)
	wg.Add(2)
	for i := 0; i < 2; i++ {
		go func() {
			defer wg.Done()
			wins <- w.SetOnce(confirmedFree)
		}()
	}
	wg.Wait()
	close(wins)

	trueCount := 0
	for won := range wins {
		if won {
			trueCount++
		}
	}
	if trueCount != 1 {
		t.Fatalf("expected exactly one winner, got %d", trueCount)
	}
}

func TestTestAnyAndLoadStore(t *testing.T) {
	var w Word
	w.Store(0b101)
	if w.Load() != 0b101 {
		t.Fatalf("Load() = %b, want %b", w.Load(), 0b101)
	}
	if !w.TestAny(0b010 | 0b001) {
		t.Fatal("TestAny should match overlapping bit")
	}
	if w.TestAny(0b010) {
		t.Fatal("TestAny should not match unset bit alone")
	}
}
