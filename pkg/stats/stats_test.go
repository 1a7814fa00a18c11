package stats

import (
	"testing"
	"time"

	"github.com/lumenbridge/gatewayd/pkg/classify"
)

func TestCounters_RecordsRequestsAndClassification(t *testing.T) {
	c := New()
	c.RecordRequest(classify.LabelNormal)
	c.RecordRequest(classify.LabelNormal)
	c.RecordRequest(classify.LabelTitle)

	snap := c.Snapshot()
	if snap.Total != 3 {
		t.Errorf("expected total 3, got %d", snap.Total)
	}
	if snap.ByClassification[classify.LabelNormal] != 2 {
		t.Errorf("expected 2 NORMAL, got %d", snap.ByClassification[classify.LabelNormal])
	}
	if snap.ByClassification[classify.LabelTitle] != 1 {
		t.Errorf("expected 1 TITLE, got %d", snap.ByClassification[classify.LabelTitle])
	}
}

func TestCounters_RecordsCacheAndErrors(t *testing.T) {
	c := New()
	c.RecordCacheHit()
	c.RecordCacheHit()
	c.RecordError()

	snap := c.Snapshot()
	if snap.Cached != 2 {
		t.Errorf("expected 2 cache hits, got %d", snap.Cached)
	}
	if snap.Errors != 1 {
		t.Errorf("expected 1 error, got %d", snap.Errors)
	}
}

func TestCounters_SnapshotIsIndependentCopy(t *testing.T) {
	c := New()
	c.RecordRequest(classify.LabelNormal)
	snap := c.Snapshot()

	c.RecordRequest(classify.LabelNormal)
	if snap.Total != 1 {
		t.Errorf("expected snapshot to be frozen at 1, got %d", snap.Total)
	}
}

func TestCounters_LogPeriodicallyStopsOnSignal(t *testing.T) {
	c := New()
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		c.LogPeriodically(5*time.Millisecond, stop)
		close(done)
	}()

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected LogPeriodically to return after stop is closed")
	}
}
