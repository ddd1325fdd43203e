package cache

import "testing"

type fakeResponses struct {
	store map[string]Response
}

func newFakeResponses() *fakeResponses {
	return &fakeResponses{store: map[string]Response{}}
}

func (f *fakeResponses) Get(key string) (Response, bool, error) {
	r, ok := f.store[key]
	return r, ok, nil
}

func (f *fakeResponses) Put(key string, resp Response) error {
	f.store[key] = resp
	return nil
}

type fakeSkips struct {
	nextRunID int64
	finalized map[int64]string
	records   map[string]*SkipRecord
}

func newFakeSkips() *fakeSkips {
	return &fakeSkips{finalized: map[int64]string{}, records: map[string]*SkipRecord{}}
}

func (f *fakeSkips) CreateRun(suite string) (int64, error) {
	f.nextRunID++
	return f.nextRunID, nil
}

func (f *fakeSkips) FinalizeRun(runID int64, status string) error {
	f.finalized[runID] = status
	return nil
}

func (f *fakeSkips) RecordResult(runID int64, testID, fingerprintHex, outcome string, score float64, skipReason string) error {
	if outcome == "pass" {
		f.records[fingerprintHex] = &SkipRecord{PreviousRunID: runID, PreviousScore: score, Reason: "fingerprint_match"}
	}
	return nil
}

func (f *fakeSkips) LastPassingByFingerprint(fingerprintHex string) (*SkipRecord, bool, error) {
	rec, ok := f.records[fingerprintHex]
	return rec, ok, nil
}

func TestGate_LookupResponse_MissThenHitAfterStore(t *testing.T) {
	g := NewGate(newFakeResponses(), newFakeSkips())

	_, hit, err := g.LookupResponse("gpt-4", "hello", "fp-1", "", false)
	if err != nil {
		t.Fatalf("LookupResponse() error: %v", err)
	}
	if hit {
		t.Fatal("expected miss before any store")
	}

	if err := g.StoreResponse("gpt-4", "hello", "fp-1", "", Response{Text: "world", Model: "gpt-4"}); err != nil {
		t.Fatalf("StoreResponse() error: %v", err)
	}

	resp, hit, err := g.LookupResponse("gpt-4", "hello", "fp-1", "", false)
	if err != nil {
		t.Fatalf("LookupResponse() error: %v", err)
	}
	if !hit || resp.Text != "world" {
		t.Fatalf("LookupResponse() = %+v, hit=%v, want world/true", resp, hit)
	}
}

func TestGate_LookupResponse_RefreshCacheForcesMiss(t *testing.T) {
	responses := newFakeResponses()
	g := NewGate(responses, newFakeSkips())

	if err := g.StoreResponse("gpt-4", "hello", "fp-1", "", Response{Text: "world"}); err != nil {
		t.Fatalf("StoreResponse() error: %v", err)
	}

	_, hit, err := g.LookupResponse("gpt-4", "hello", "fp-1", "", true)
	if err != nil {
		t.Fatalf("LookupResponse() error: %v", err)
	}
	if hit {
		t.Error("expected refresh_cache to force a miss even though an entry exists")
	}
}

func TestGate_CheckIncremental_RequiresIncrementalAndNoRefresh(t *testing.T) {
	skips := newFakeSkips()
	g := NewGate(newFakeResponses(), skips)

	runID, err := g.CreateRun("demo")
	if err != nil {
		t.Fatalf("CreateRun() error: %v", err)
	}
	if err := g.RecordResult(runID, "tc-1", "fp-1", "pass", 1.0, ""); err != nil {
		t.Fatalf("RecordResult() error: %v", err)
	}
	if err := g.FinalizeRun(runID, "completed"); err != nil {
		t.Fatalf("FinalizeRun() error: %v", err)
	}

	if _, hit, _ := g.CheckIncremental("fp-1", false, false); hit {
		t.Error("expected no hit when incremental is false")
	}
	if _, hit, _ := g.CheckIncremental("fp-1", true, true); hit {
		t.Error("expected no hit when refresh_cache is true")
	}

	rec, hit, err := g.CheckIncremental("fp-1", true, false)
	if err != nil {
		t.Fatalf("CheckIncremental() error: %v", err)
	}
	if !hit {
		t.Fatal("expected a hit for a previously-passing fingerprint")
	}
	if rec.PreviousRunID != runID || rec.Reason != "fingerprint_match" {
		t.Errorf("SkipRecord = %+v, want PreviousRunID=%d Reason=fingerprint_match", rec, runID)
	}
}

func TestGate_CheckIncremental_NoRecordIsMiss(t *testing.T) {
	g := NewGate(newFakeResponses(), newFakeSkips())
	_, hit, err := g.CheckIncremental("fp-unseen", true, false)
	if err != nil {
		t.Fatalf("CheckIncremental() error: %v", err)
	}
	if hit {
		t.Error("expected miss for a fingerprint with no recorded passing result")
	}
}
