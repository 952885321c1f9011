package pps

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestBoltCandidateCache(t *testing.T) {
	up := newdepspecProvider([]depspec{
		dsp("flask 2.0", "werkzeug >=2.0"),
		dsp("flask 2.2", "werkzeug >=2.2", "click >=8.0"),
	})

	path := filepath.Join(t.TempDir(), "candidates.db")
	cache, err := NewBoltCandidateCache(path, up, time.Hour)
	if err != nil {
		t.Fatalf("cache open failed: %s", err)
	}
	defer cache.Close()

	ctx := context.Background()

	cands, err := cache.ListCandidates(ctx, "flask", Source{})
	if err != nil {
		t.Fatalf("first listing failed: %s", err)
	}
	if len(cands) != 2 {
		t.Fatalf("got %d candidates, wanted 2", len(cands))
	}

	// second read comes from disk, not the upstream
	cands2, err := cache.ListCandidates(ctx, "flask", Source{})
	if err != nil {
		t.Fatalf("second listing failed: %s", err)
	}
	if calls := up.calls["flask|index"]; calls != 1 {
		t.Errorf("upstream asked %d times, wanted 1", calls)
	}

	if len(cands2) != len(cands) {
		t.Fatalf("cached listing has %d candidates, wanted %d", len(cands2), len(cands))
	}
	for i := range cands {
		if cands2[i].Version.Compare(cands[i].Version) != 0 {
			t.Errorf("candidate %d version changed through the cache: %s vs %s",
				i, cands2[i].Version, cands[i].Version)
		}
		if len(cands2[i].Requirements) != len(cands[i].Requirements) {
			t.Errorf("candidate %d requirements did not round-trip", i)
			continue
		}
		for j, req := range cands[i].Requirements {
			if cands2[i].Requirements[j].String() != req.String() {
				t.Errorf("requirement %d/%d round-tripped as %q, wanted %q",
					i, j, cands2[i].Requirements[j], req)
			}
		}
	}
}

func TestBoltCandidateCachePersists(t *testing.T) {
	up := newdepspecProvider([]depspec{dsp("foo 1.0")})
	path := filepath.Join(t.TempDir(), "candidates.db")

	cache, err := NewBoltCandidateCache(path, up, time.Hour)
	if err != nil {
		t.Fatalf("cache open failed: %s", err)
	}
	if _, err := cache.ListCandidates(context.Background(), "foo", Source{}); err != nil {
		t.Fatalf("listing failed: %s", err)
	}
	cache.Close()

	// reopen on a fresh upstream that would fail if consulted
	cache, err = NewBoltCandidateCache(path, newdepspecProvider(nil), time.Hour)
	if err != nil {
		t.Fatalf("cache reopen failed: %s", err)
	}
	defer cache.Close()

	cands, err := cache.ListCandidates(context.Background(), "foo", Source{})
	if err != nil {
		t.Fatalf("listing after reopen failed: %s", err)
	}
	if len(cands) != 1 || cands[0].Version.String() != "1.0" {
		t.Errorf("persisted entry did not survive reopen: %v", cands)
	}
}

func TestBoltCandidateCacheExpiry(t *testing.T) {
	up := newdepspecProvider([]depspec{dsp("foo 1.0")})
	path := filepath.Join(t.TempDir(), "candidates.db")

	cache, err := NewBoltCandidateCache(path, up, time.Nanosecond)
	if err != nil {
		t.Fatalf("cache open failed: %s", err)
	}
	defer cache.Close()

	ctx := context.Background()
	if _, err := cache.ListCandidates(ctx, "foo", Source{}); err != nil {
		t.Fatalf("listing failed: %s", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := cache.ListCandidates(ctx, "foo", Source{}); err != nil {
		t.Fatalf("listing failed: %s", err)
	}

	if calls := up.calls["foo|index"]; calls != 2 {
		t.Errorf("expired entry should be refetched; upstream asked %d times", calls)
	}
}

func TestBoltCandidateCacheUnknownPassthrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.db")
	cache, err := NewBoltCandidateCache(path, newdepspecProvider(nil), time.Hour)
	if err != nil {
		t.Fatalf("cache open failed: %s", err)
	}
	defer cache.Close()

	_, err = cache.ListCandidates(context.Background(), "ghost", Source{})
	if err == nil {
		t.Fatal("expected an error for an unknown package")
	}
	if _, ok := err.(*UnknownPackageError); !ok {
		t.Fatalf("expected *UnknownPackageError, got %T: %s", err, err)
	}
}
