package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestReplayStreamsRecordedUpdates(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	x := discToken(0x01, "X")
	y := discToken(0x02, "Y")
	for v := uint64(1); v <= 3; v++ {
		update := discUpdate(0x01, x, y, 1_000_000, 2_000_000)
		update.Version = v
		if err := enc.Encode(update); err != nil {
			t.Fatal(err)
		}
	}

	r := NewReplay(&buf, 0, 8, testLogger())

	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	var versions []uint64
	for update := range r.Updates() {
		versions = append(versions, update.Version)
	}
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(versions) != 3 || versions[0] != 1 || versions[2] != 3 {
		t.Fatalf("versions = %v, want [1 2 3]", versions)
	}
}

func TestReplaySkipsMalformedLines(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("not json\n")
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(discUpdate(0x01, discToken(0x01, "X"), discToken(0x02, "Y"), 1000, 1000)); err != nil {
		t.Fatal(err)
	}
	buf.WriteString("\n{broken\n")

	r := NewReplay(&buf, 0, 8, testLogger())
	go r.Run(context.Background())

	var count int
	for range r.Updates() {
		count++
	}
	if count != 1 {
		t.Fatalf("decoded %d updates, want 1", count)
	}
}

func TestReplayCancellation(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 0; i < 100; i++ {
		enc.Encode(discUpdate(0x01, discToken(0x01, "X"), discToken(0x02, "Y"), 1000, 1000))
	}

	// An unbuffered consumer that never reads forces Run to block on send.
	r := NewReplay(&buf, 0, 1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}
