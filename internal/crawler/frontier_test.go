package crawler

import (
	"testing"
	"time"
)

func TestFrontierTryEnqueueRejectsDuplicates(t *testing.T) {
	f := NewFrontier(nil, 0)
	now := time.Now()
	if !f.TryEnqueue("https://example.com/a", 0, "", now) {
		t.Fatalf("expected first enqueue to succeed")
	}
	if f.TryEnqueue("https://example.com/a", 0, "", now) {
		t.Fatalf("expected duplicate enqueue to be rejected")
	}
	if f.Len() != 1 {
		t.Fatalf("expected queue length 1, got %d", f.Len())
	}
}

func TestFrontierClaimMarksInFlight(t *testing.T) {
	f := NewFrontier(nil, 0)
	now := time.Now()
	f.TryEnqueue("https://example.com/a", 0, "", now)

	entry, ok := f.Claim(now)
	if !ok {
		t.Fatalf("expected a claimable entry")
	}
	if entry.URL != "https://example.com/a" {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if f.Len() != 0 {
		t.Fatalf("expected queue drained after claim")
	}
	if f.Outstanding() != 1 {
		t.Fatalf("expected one in-flight entry")
	}

	// Re-enqueuing the same URL while it is in flight must be rejected.
	if f.TryEnqueue("https://example.com/a", 0, "", now) {
		t.Fatalf("expected in-flight url to be rejected on re-enqueue")
	}
}

func TestFrontierCompleteMarksVisitedAndFreesInFlight(t *testing.T) {
	f := NewFrontier(nil, 0)
	now := time.Now()
	f.TryEnqueue("https://example.com/a", 0, "", now)
	entry, _ := f.Claim(now)

	f.Complete(entry.URL)
	if f.Outstanding() != 0 {
		t.Fatalf("expected in-flight to be cleared")
	}
	if f.VisitedCount() != 1 {
		t.Fatalf("expected visited count 1")
	}
	if f.TryEnqueue(entry.URL, 0, "", now) {
		t.Fatalf("expected visited url to be rejected on re-enqueue")
	}
}

func TestFrontierMaxPagesBudget(t *testing.T) {
	f := NewFrontier(nil, 1)
	now := time.Now()
	if !f.TryEnqueue("https://example.com/a", 0, "", now) {
		t.Fatalf("expected first enqueue within budget to succeed")
	}
	if f.TryEnqueue("https://example.com/b", 0, "", now) {
		t.Fatalf("expected enqueue beyond page budget to be rejected")
	}
}

func TestFrontierSnapshotRestoreRoundTrip(t *testing.T) {
	f := NewFrontier(nil, 0)
	now := time.Now()
	f.TryEnqueue("https://example.com/a", 0, "", now)
	f.TryEnqueue("https://example.com/b", 0, "", now)
	entry, _ := f.Claim(now)
	f.Complete(entry.URL)

	snap := f.Snapshot()

	restored := NewFrontier(nil, 0)
	restored.Restore(snap)

	if restored.Len() != f.Len() {
		t.Fatalf("expected matching queue length after restore")
	}
	if restored.VisitedCount() != f.VisitedCount() {
		t.Fatalf("expected matching visited count after restore")
	}
}
