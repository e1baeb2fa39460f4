package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/lplens/dbopen"

	_ "modernc.org/sqlite"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func openTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	s := NewStore(db)
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.SetClock(clk.now)
	return s, clk
}

func seedLP(t *testing.T, s *Store, account, id string) *LandingPage {
	t.Helper()
	name := "LP " + id
	lp := &LandingPage{ID: id, AccountID: account, URL: "https://example.com/" + id, Name: &name}
	if _, err := s.CreateLandingPage(context.Background(), lp, "snap-"+id+"-1"); err != nil {
		t.Fatalf("create landing page: %v", err)
	}
	return lp
}

func TestApplySchema(t *testing.T) {
	// WHAT: Schema creates both tables and is idempotent.
	// WHY: ApplySchema runs at every boot.
	s, _ := openTestStore(t)
	if err := ApplySchema(s.DB); err != nil {
		t.Fatalf("second apply: %v", err)
	}
	for _, table := range []string{"landing_pages", "snapshots"} {
		var name string
		if err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name); err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestCreateLandingPage_FirstSnapshotPending(t *testing.T) {
	// WHAT: Creating a landing page also creates a pending v1 snapshot.
	// WHY: Every LP must have a history entry from the start.
	s, _ := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-1")

	got, err := s.GetLandingPage(ctx, "acc-1", "lp-1")
	if err != nil || got == nil {
		t.Fatalf("get: %v %v", got, err)
	}
	if got.Name == nil || *got.Name != "LP lp-1" {
		t.Errorf("name: got %v", got.Name)
	}
	snaps, err := s.ListSnapshots(ctx, "lp-1")
	if err != nil {
		t.Fatalf("list snapshots: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots: got %d, want 1", len(snaps))
	}
	if snaps[0].Status != StatusPending || snaps[0].Version != 1 {
		t.Errorf("first snapshot: status=%s version=%d", snaps[0].Status, snaps[0].Version)
	}
	if snaps[0].AnalysisResult != nil || snaps[0].ScreenshotPath != nil {
		t.Error("pending snapshot must carry no result")
	}
}

func TestCreateLandingPage_DuplicateIDRollsBack(t *testing.T) {
	// WHAT: A failed create leaves no orphan snapshot.
	// WHY: LP and first snapshot are written atomically.
	s, _ := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-1")

	lp := &LandingPage{ID: "lp-1", AccountID: "acc-1", URL: "https://other.example"}
	if _, err := s.CreateLandingPage(ctx, lp, "snap-other"); err == nil {
		t.Fatal("expected duplicate id error")
	}
	snap, err := s.GetSnapshot(ctx, "snap-other")
	if err != nil {
		t.Fatal(err)
	}
	if snap != nil {
		t.Error("snapshot of failed create must not exist")
	}
}

func TestGetLandingPage_AccountScoped(t *testing.T) {
	// WHAT: Another account cannot see or delete the landing page.
	// WHY: Ownership is enforced in every query.
	s, _ := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-1")

	got, err := s.GetLandingPage(ctx, "acc-2", "lp-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("foreign account must not read the LP")
	}
	ok, err := s.DeleteLandingPage(ctx, "acc-2", "lp-1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("foreign account must not delete the LP")
	}

	public, err := s.GetLandingPageByID(ctx, "lp-1")
	if err != nil || public == nil {
		t.Fatalf("by id: %v %v", public, err)
	}
}

func TestListLandingPages_NewestFirstWithLatest(t *testing.T) {
	// WHAT: List is newest first and attaches only the latest snapshot.
	// WHY: The dashboard shows one status per LP.
	s, clk := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-a")
	clk.advance(time.Second)
	seedLP(t, s, "acc-1", "lp-b")
	seedLP(t, s, "acc-2", "lp-c")

	clk.advance(time.Second)
	if _, err := s.InsertSnapshot(ctx, "snap-a-2", "lp-a", StatusAnalyzing); err != nil {
		t.Fatal(err)
	}

	lps, err := s.ListLandingPages(ctx, "acc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(lps) != 2 {
		t.Fatalf("got %d LPs, want 2", len(lps))
	}
	if lps[0].ID != "lp-b" || lps[1].ID != "lp-a" {
		t.Errorf("order: %s, %s", lps[0].ID, lps[1].ID)
	}
	if len(lps[1].Snapshots) != 1 || lps[1].Snapshots[0].ID != "snap-a-2" {
		t.Errorf("lp-a latest: %+v", lps[1].Snapshots)
	}

	n, err := s.CountLandingPages(ctx, "acc-1")
	if err != nil || n != 2 {
		t.Errorf("count: %d %v", n, err)
	}
}

func TestDeleteLandingPage_CascadesSnapshots(t *testing.T) {
	// WHAT: Deleting an LP removes its snapshots.
	// WHY: Snapshots have no meaning without their LP.
	s, _ := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-1")

	ok, err := s.DeleteLandingPage(ctx, "acc-1", "lp-1")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	n, err := s.CountSnapshots(ctx, "lp-1")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("snapshots left: %d", n)
	}
}

func TestLatestSnapshot_SameMillisecondTieBreak(t *testing.T) {
	// WHAT: Two snapshots with the same created_at resolve by insertion order.
	// WHY: Re-analysis within one millisecond must still pick the newer row.
	s, _ := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-1")
	if _, err := s.InsertSnapshot(ctx, "snap-2", "lp-1", StatusAnalyzing); err != nil {
		t.Fatal(err)
	}
	latest, err := s.LatestSnapshot(ctx, "lp-1")
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != "snap-2" {
		t.Errorf("latest: %+v", latest)
	}
}

func TestSnapshotLifecycle_Versions(t *testing.T) {
	// WHAT: Done writes assign version = row count; error writes keep version.
	// WHY: Versions must be monotonic across re-analyses.
	s, clk := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-1")

	if err := s.MarkAnalyzing(ctx, "snap-lp-1-1"); err != nil {
		t.Fatal(err)
	}
	shot := "/screenshots/lp-1-1.png"
	v, err := s.MarkDone(ctx, "snap-lp-1-1", &shot, `{"summary":"ok"}`)
	if err != nil {
		t.Fatal(err)
	}
	if v != 1 {
		t.Errorf("first done version: got %d, want 1", v)
	}

	clk.advance(time.Second)
	next, err := s.InsertSnapshot(ctx, "snap-lp-1-2", "lp-1", StatusAnalyzing)
	if err != nil {
		t.Fatal(err)
	}
	if next.Version != 2 {
		t.Errorf("inserted version: got %d, want 2", next.Version)
	}
	if err := s.MarkError(ctx, "snap-lp-1-2", "boom"); err != nil {
		t.Fatal(err)
	}
	errSnap, _ := s.GetSnapshot(ctx, "snap-lp-1-2")
	if errSnap.Status != StatusError || errSnap.Version != 2 {
		t.Errorf("error snapshot: %+v", errSnap)
	}
	if errSnap.ErrorMessage == nil || *errSnap.ErrorMessage != "boom" {
		t.Errorf("error message: %v", errSnap.ErrorMessage)
	}

	// Retry of the errored row lands in place.
	if err := s.MarkAnalyzing(ctx, "snap-lp-1-2"); err != nil {
		t.Fatal(err)
	}
	retrying, _ := s.GetSnapshot(ctx, "snap-lp-1-2")
	if retrying.Status != StatusAnalyzing || retrying.ErrorMessage != nil {
		t.Errorf("analyzing row must not keep the old failure: %+v", retrying)
	}
	v, err = s.MarkDone(ctx, "snap-lp-1-2", nil, `{"summary":"again"}`)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Errorf("second done version: got %d, want 2", v)
	}
	done, _ := s.GetSnapshot(ctx, "snap-lp-1-2")
	if done.ErrorMessage != nil {
		t.Error("done must clear error message")
	}
	if done.ScreenshotPath != nil {
		t.Error("nil screenshot must be stored as NULL")
	}

	latestDone, err := s.LatestDoneSnapshot(ctx, "lp-1")
	if err != nil || latestDone == nil || latestDone.ID != "snap-lp-1-2" {
		t.Errorf("latest done: %+v %v", latestDone, err)
	}
}

func TestMarkMissingSnapshot(t *testing.T) {
	// WHAT: Status writes on an unknown id return ErrNoRows.
	// WHY: Callers must not silently lose a result.
	s, _ := openTestStore(t)
	ctx := context.Background()
	if err := s.MarkAnalyzing(ctx, "nope"); !errors.Is(err, ErrNoRows) {
		t.Errorf("analyzing: %v", err)
	}
	if err := s.MarkError(ctx, "nope", "x"); !errors.Is(err, ErrNoRows) {
		t.Errorf("error: %v", err)
	}
	if _, err := s.MarkDone(ctx, "nope", nil, "{}"); !errors.Is(err, ErrNoRows) {
		t.Errorf("done: %v", err)
	}
}

func TestInsertSnapshot_InvalidStatus(t *testing.T) {
	s, _ := openTestStore(t)
	seedLP(t, s, "acc-1", "lp-1")
	if _, err := s.InsertSnapshot(context.Background(), "x", "lp-1", Status("weird")); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestClaimPending_OnlyOnce(t *testing.T) {
	// WHAT: A pending snapshot can be claimed exactly once.
	// WHY: Concurrent workers must not analyze the same row twice.
	s, _ := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-1")

	jobs, err := s.ListPendingSnapshots(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 || jobs[0].AccountID != "acc-1" || jobs[0].URL != "https://example.com/lp-1" {
		t.Fatalf("jobs: %+v", jobs)
	}

	ok, err := s.ClaimPending(ctx, jobs[0].SnapshotID)
	if err != nil || !ok {
		t.Fatalf("first claim: %v %v", ok, err)
	}
	ok, err = s.ClaimPending(ctx, jobs[0].SnapshotID)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("second claim must fail")
	}

	jobs, _ = s.ListPendingSnapshots(ctx, 10)
	if len(jobs) != 0 {
		t.Errorf("pending after claim: %d", len(jobs))
	}
}

func TestFailStaleAnalyzing(t *testing.T) {
	// WHAT: Rows stuck in analyzing before the cutoff move to error.
	// WHY: A crash mid-analysis must not leave a row spinning forever.
	s, clk := openTestStore(t)
	ctx := context.Background()
	seedLP(t, s, "acc-1", "lp-old")
	seedLP(t, s, "acc-1", "lp-new")

	if err := s.MarkAnalyzing(ctx, "snap-lp-old-1"); err != nil {
		t.Fatal(err)
	}
	clk.advance(20 * time.Minute)
	if err := s.MarkAnalyzing(ctx, "snap-lp-new-1"); err != nil {
		t.Fatal(err)
	}

	ids, err := s.FailStaleAnalyzing(ctx, clk.now().Add(-10*time.Minute), "analysis interrupted")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "snap-lp-old-1" {
		t.Fatalf("failed ids: %v", ids)
	}
	old, _ := s.GetSnapshot(ctx, "snap-lp-old-1")
	if old.Status != StatusError || old.ErrorMessage == nil || *old.ErrorMessage != "analysis interrupted" {
		t.Errorf("old: %+v", old)
	}
	fresh, _ := s.GetSnapshot(ctx, "snap-lp-new-1")
	if fresh.Status != StatusAnalyzing {
		t.Errorf("fresh row must stay analyzing: %s", fresh.Status)
	}
}
