package network

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hulrap/TradingBot-sub007/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testPool(t *testing.T, urls ...string) *endpointPool {
	t.Helper()
	p, err := newEndpointPool(1, urls, testLogger())
	if err != nil {
		t.Fatalf("newEndpointPool: %v", err)
	}
	// Tests never talk to a node; the connection stays unset.
	p.dial = func(ctx context.Context, url string) (*ethclient.Client, error) {
		return nil, nil
	}
	return p
}

func TestPoolRequiresEndpoints(t *testing.T) {
	if _, err := newEndpointPool(1, nil, testLogger()); !errors.Is(err, domain.ErrNoEndpoints) {
		t.Fatalf("err = %v, want ErrNoEndpoints", err)
	}
}

func TestPoolRoundRobin(t *testing.T) {
	p := testPool(t, "ws://a", "ws://b", "ws://c")

	var order []string
	for i := 0; i < 6; i++ {
		ep, err := p.pick(context.Background())
		if err != nil {
			t.Fatalf("pick %d: %v", i, err)
		}
		order = append(order, ep.url)
	}
	want := []string{"ws://a", "ws://b", "ws://c", "ws://a", "ws://b", "ws://c"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("rotation = %v, want %v", order, want)
		}
	}
}

func TestPoolBenchesFailingEndpoint(t *testing.T) {
	p := testPool(t, "ws://a", "ws://b")

	// Drive ws://a over the failure threshold; ws://b stays healthy.
	for fails := 0; fails < maxConsecutiveFailures; {
		ep, err := p.pick(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if ep.url == "ws://a" {
			p.report(ep, classify("call", errors.New("connection refused")))
			fails++
		} else {
			p.report(ep, nil)
		}
	}

	for i := 0; i < 4; i++ {
		ep, err := p.pick(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if ep.url == "ws://a" {
			t.Fatal("benched endpoint served a request inside its cooldown")
		}
	}
}

func TestPoolSuccessResetsFailureCount(t *testing.T) {
	p := testPool(t, "ws://a")

	ep, _ := p.pick(context.Background())
	for i := 0; i < maxConsecutiveFailures-1; i++ {
		p.report(ep, classify("call", errors.New("timeout")))
	}
	p.report(ep, nil)
	p.report(ep, classify("call", errors.New("timeout")))

	// The success in between means the endpoint never reached the
	// threshold.
	got, err := p.pick(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.url != "ws://a" {
		t.Fatal("endpoint benched despite interleaved success")
	}
}

func TestPoolPermanentErrorsDoNotBench(t *testing.T) {
	p := testPool(t, "ws://a")
	ep, _ := p.pick(context.Background())
	for i := 0; i < maxConsecutiveFailures*2; i++ {
		p.report(ep, classify("call", errors.New("execution reverted: K")))
	}
	if _, err := p.pick(context.Background()); err != nil {
		t.Fatalf("endpoint benched on permanent errors: %v", err)
	}
}

func TestPoolFallsBackWhenAllBenched(t *testing.T) {
	p := testPool(t, "ws://a", "ws://b")
	now := time.Now()
	p.now = func() time.Time { return now }

	// Fail every request until both endpoints are benched.
	for i := 0; i < 2*maxConsecutiveFailures; i++ {
		ep, err := p.pick(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		p.report(ep, classify("call", errors.New("connection refused")))
	}

	// Both endpoints benched: pick must still serve one rather than
	// starve the caller.
	if _, err := p.pick(context.Background()); err != nil {
		t.Fatalf("pick with all endpoints benched: %v", err)
	}
}
