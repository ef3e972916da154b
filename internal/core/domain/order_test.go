package domain

import (
	"testing"
	"time"
)

func TestSplitWindow(t *testing.T) {
	after := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	before := after.Add(20 * 24 * time.Hour)

	windows := SplitWindow(after, before, 7*24*time.Hour)
	if len(windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(windows))
	}
	if !windows[0].After.Equal(after) {
		t.Errorf("first window should start at after, got %v", windows[0].After)
	}
	for i := 1; i < len(windows); i++ {
		if !windows[i].After.Equal(windows[i-1].Before) {
			t.Errorf("window %d does not start where window %d ends", i, i-1)
		}
	}
	last := windows[len(windows)-1]
	if !last.Before.Equal(before) {
		t.Errorf("last window should end at before, got %v", last.Before)
	}
	if got := last.Before.Sub(last.After); got != 6*24*time.Hour {
		t.Errorf("expected truncated 6 day window, got %v", got)
	}
}

func TestSplitWindow_Degenerate(t *testing.T) {
	now := time.Now()

	windows := SplitWindow(now, now, 7*24*time.Hour)
	if len(windows) != 1 {
		t.Errorf("expected a single window for an empty range, got %d", len(windows))
	}

	windows = SplitWindow(now, now.Add(time.Hour), 0)
	if len(windows) != 1 {
		t.Errorf("expected a single window for zero size, got %d", len(windows))
	}
}

func TestOrderQuery_Span(t *testing.T) {
	now := time.Now()
	q := OrderQuery{}
	if q.Span() != 0 || q.Bounded() {
		t.Error("open query should have zero span")
	}

	q = q.WithWindow(now.Add(-48*time.Hour), now)
	if q.Span() != 48*time.Hour || !q.Bounded() {
		t.Errorf("expected 48h span, got %v", q.Span())
	}
}
