package repair

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/lplens/dbopen"
	"github.com/hazyhaar/lplens/lplens/internal/store"

	_ "modernc.org/sqlite"
)

func seed(t *testing.T) (*store.Store, *time.Time) {
	t.Helper()
	db := dbopen.OpenMemory(t)
	if err := store.ApplySchema(db); err != nil {
		t.Fatal(err)
	}
	st := store.NewStore(db)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	st.SetClock(func() time.Time { return now })

	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		lp := &store.LandingPage{ID: "lp-" + id, AccountID: "acc", URL: "https://example.com/" + id}
		if _, err := st.CreateLandingPage(ctx, lp, "snap-"+id); err != nil {
			t.Fatal(err)
		}
	}
	return st, &now
}

func TestSweepOnce_FailsStale(t *testing.T) {
	// WHAT: A snapshot stuck in analyzing past StaleAfter moves to error.
	// WHY: A crash between status writes must not leave it spinning.
	st, now := seed(t)
	ctx := context.Background()
	st.MarkAnalyzing(ctx, "snap-a")
	*now = now.Add(15 * time.Minute)
	st.MarkAnalyzing(ctx, "snap-b")

	sw := NewSweeper(st, SweepConfig{StaleAfter: 10 * time.Minute}, nil)
	sw.now = func() time.Time { return *now }

	results := sw.SweepOnce(ctx)
	if len(results) != 1 || results[0].SnapshotID != "snap-a" {
		t.Fatalf("results: %+v", results)
	}
	a, _ := st.GetSnapshot(ctx, "snap-a")
	if a.Status != store.StatusError || a.ErrorMessage == nil || *a.ErrorMessage != InterruptedMessage {
		t.Errorf("snap-a: %+v", a)
	}
	b, _ := st.GetSnapshot(ctx, "snap-b")
	if b.Status != store.StatusAnalyzing {
		t.Errorf("snap-b must stay analyzing: %s", b.Status)
	}
}

func TestSweepOnce_IgnoresOtherStatuses(t *testing.T) {
	// WHAT: Old pending snapshots are not swept.
	// WHY: Only interrupted attempts are failures; pending rows await a trigger.
	st, now := seed(t)
	sw := NewSweeper(st, SweepConfig{}, nil)
	sw.now = func() time.Time { return now.Add(24 * time.Hour) }

	if results := sw.SweepOnce(context.Background()); len(results) != 0 {
		t.Errorf("results: %+v", results)
	}
}

func TestRun_SweepsAtStartup(t *testing.T) {
	st, now := seed(t)
	st.MarkAnalyzing(context.Background(), "snap-a")

	sw := NewSweeper(st, SweepConfig{Interval: time.Hour}, nil)
	sw.now = func() time.Time { return now.Add(time.Hour) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { sw.Run(ctx); close(done) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap, _ := st.GetSnapshot(context.Background(), "snap-a")
		if snap != nil && snap.Status == store.StatusError {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	snap, _ := st.GetSnapshot(context.Background(), "snap-a")
	if snap.Status != store.StatusError {
		t.Errorf("startup sweep did not run: %s", snap.Status)
	}
}
