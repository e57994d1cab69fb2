package memory

import (
	"testing"
	"time"
)

func TestAnalysisRepoExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	r := NewAnalysisRepo(time.Minute)
	r.now = func() time.Time { return now }

	r.Save(&Analysis{ID: "old", CreatedAt: now.Add(-2 * time.Minute)})
	r.Save(&Analysis{ID: "new", CreatedAt: now.Add(-10 * time.Second)})

	if _, ok := r.Get("old"); ok {
		t.Fatal("expired analysis returned")
	}
	if _, ok := r.Get("new"); !ok {
		t.Fatal("fresh analysis missing")
	}

	r.Save(&Analysis{ID: "old2", CreatedAt: now.Add(-time.Hour)})
	if n := r.Sweep(); n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if _, ok := r.Get("new"); !ok {
		t.Fatal("sweep removed a fresh analysis")
	}
}

func TestAnalysisRepoNoRetention(t *testing.T) {
	r := NewAnalysisRepo(0)
	r.Save(&Analysis{ID: "a", CreatedAt: time.Unix(0, 0)})
	if _, ok := r.Get("a"); !ok {
		t.Fatal("zero retention should keep entries")
	}
	if _, ok := r.Get("missing"); ok {
		t.Fatal("unknown id found")
	}
}
