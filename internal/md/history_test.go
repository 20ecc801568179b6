package md

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReplayStopsOnCancel(t *testing.T) {
	base := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := []Bar{{Timestamp: base}, {Timestamp: base.Add(time.Hour)}, {Timestamp: base.Add(2 * time.Hour)}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	seen := 0
	err := Replay(ctx, bars, func(Bar) {
		seen++
		if seen == 2 {
			cancel()
		}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected replay to stop after 2 bars, got %d", seen)
	}
}

func TestReplayDeliversAllBars(t *testing.T) {
	bars := make([]Bar, 5)
	seen := 0
	if err := Replay(context.Background(), bars, func(Bar) { seen++ }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen != len(bars) {
		t.Fatalf("expected %d bars, got %d", len(bars), seen)
	}
}
