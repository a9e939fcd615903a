package execution

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

func TestSingleFlightAcquireRelease(t *testing.T) {
	sf := newSingleFlight()
	fp := domain.Fingerprint("abc123")

	release, err := sf.TryAcquire(fp)
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if !sf.Held(fp) {
		t.Error("fingerprint not reported held")
	}
	if _, err := sf.TryAcquire(fp); !errors.Is(err, domain.ErrInFlight) {
		t.Fatalf("second acquire = %v, want ErrInFlight", err)
	}

	release()
	if sf.Held(fp) {
		t.Error("fingerprint still held after release")
	}
	if _, err := sf.TryAcquire(fp); err != nil {
		t.Fatalf("re-acquire after release failed: %v", err)
	}
}

func TestSingleFlightReleaseIdempotent(t *testing.T) {
	sf := newSingleFlight()
	fp := domain.Fingerprint("abc123")

	release, _ := sf.TryAcquire(fp)
	release()

	// A second holder takes the lock; the first holder's stale release
	// must not free it.
	if _, err := sf.TryAcquire(fp); err != nil {
		t.Fatalf("re-acquire failed: %v", err)
	}
	release()
	if !sf.Held(fp) {
		t.Fatal("stale release freed a lock it no longer owned")
	}
}

func TestSingleFlightConcurrent(t *testing.T) {
	sf := newSingleFlight()
	fp := domain.Fingerprint("contested")

	const rounds = 200
	var wins atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < rounds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := sf.TryAcquire(fp)
			if err != nil {
				return
			}
			wins.Add(1)
			release()
		}()
	}
	wg.Wait()

	if wins.Load() == 0 {
		t.Fatal("no goroutine ever acquired the lock")
	}
	if sf.Count() != 0 {
		t.Fatalf("%d locks leaked", sf.Count())
	}
}

func TestSingleFlightIndependentKeys(t *testing.T) {
	sf := newSingleFlight()
	r1, err := sf.TryAcquire("fp-1")
	if err != nil {
		t.Fatal(err)
	}
	r2, err := sf.TryAcquire("fp-2")
	if err != nil {
		t.Fatal(err)
	}
	if sf.Count() != 2 {
		t.Fatalf("Count = %d, want 2", sf.Count())
	}
	r1()
	r2()
}
