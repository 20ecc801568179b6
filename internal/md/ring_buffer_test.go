package md

import (
	"errors"
	"testing"
)

func TestRingBufferSMA(t *testing.T) {
	buffer := NewRingBuffer(5)
	values := []float64{1, 2, 3, 4, 5}
	for _, v := range values {
		buffer.Add(v)
	}

	sma, err := buffer.SMA(3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := (3.0 + 4.0 + 5.0) / 3.0
	if sma != expected {
		t.Fatalf("expected SMA %.2f, got %.2f", expected, sma)
	}
}

func TestRingBufferSMAInsufficientData(t *testing.T) {
	buffer := NewRingBuffer(5)
	buffer.Add(1)

	if _, err := buffer.SMA(3); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestRingBufferMinMaxAfterWrap(t *testing.T) {
	buffer := NewRingBuffer(3)
	for _, v := range []float64{9, 1, 4, 7, 2} {
		buffer.Add(v)
	}

	if got := buffer.Values(); len(got) != 3 || got[0] != 4 || got[2] != 2 {
		t.Fatalf("expected [4 7 2], got %v", got)
	}
	high, _ := buffer.Max(3)
	low, _ := buffer.Min(3)
	if high != 7 || low != 2 {
		t.Fatalf("expected max 7 min 2, got %.0f %.0f", high, low)
	}
	if !buffer.Full() {
		t.Fatalf("expected buffer to report full")
	}
}
