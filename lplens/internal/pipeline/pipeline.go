// CLAUDE:SUMMARY Snapshot orchestrator: status transitions, screenshot-or-metadata acquisition, analysis, version assignment, durable outcome.
// Package pipeline turns a landing page into a versioned analysis result.
//
// One Run is one attempt:
//
//	latest snapshot → analyzing (durable)
//	capture screenshot ── ok ──→ analyze image
//	        └── "" ──→ fetch metadata → analyze text
//	→ done (version, result) | error (message)
//
// If the latest snapshot is pending, analyzing or error the attempt reuses
// that row; if it is done (or missing) a new row is appended so prior results
// stay in history. Concurrent runs for the same landing page are not locked
// against each other: the last write on the row wins.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/lplens/idgen"
	"github.com/hazyhaar/lplens/kit"
	"github.com/hazyhaar/lplens/lplens/internal/analysis"
	"github.com/hazyhaar/lplens/lplens/internal/metadata"
	"github.com/hazyhaar/lplens/lplens/internal/store"
	"github.com/hazyhaar/lplens/observability"
)

// Capturer stores a screenshot of url and returns its reference, or "".
type Capturer interface {
	Capture(ctx context.Context, url, id string) string
}

// MetadataFetcher returns whatever metadata it can; it never fails.
type MetadataFetcher interface {
	Fetch(ctx context.Context, url string) metadata.Metadata
}

// Analyzer produces results from either acquisition path.
type Analyzer interface {
	AnalyzeImage(ctx context.Context, ref string) (*analysis.Result, error)
	AnalyzeText(ctx context.Context, in analysis.TextInput) (*analysis.Result, error)
}

// EventSink records business events. *observability.EventLogger satisfies it.
type EventSink interface {
	LogEvent(ctx context.Context, event observability.BusinessEvent)
}

// ErrNotFound is returned when the landing page does not exist or is owned
// by another account. No snapshot is touched.
var ErrNotFound = errors.New("pipeline: landing page not found")

// Error is a failed attempt that was recorded on its snapshot.
type Error struct {
	SnapshotID string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: analysis of snapshot %s failed: %v", e.SnapshotID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config wires a Pipeline.
type Config struct {
	Capturer Capturer
	Fetcher  MetadataFetcher
	Analyzer Analyzer
	Events   EventSink       // optional
	NewID    idgen.Generator // snapshot ids. Default: idgen.Default.
	Logger   *slog.Logger
}

// Pipeline runs analysis attempts. Safe for concurrent use.
type Pipeline struct {
	cfg Config
}

// New creates a Pipeline.
func New(cfg Config) *Pipeline {
	if cfg.NewID == nil {
		cfg.NewID = idgen.Default
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{cfg: cfg}
}

// Outcome is a successful attempt.
type Outcome struct {
	Snapshot *store.Snapshot
	Result   *analysis.Result
	Path     analysis.Path
}

// Run performs one analysis attempt of landing page lpID owned by accountID.
// On failure the snapshot is left in error and the returned error is an
// *Error wrapping the cause.
func (p *Pipeline) Run(ctx context.Context, st *store.Store, accountID, lpID string) (*Outcome, error) {
	log := p.cfg.Logger.With("lp_id", lpID)
	start := time.Now()

	lp, err := st.GetLandingPage(ctx, accountID, lpID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load landing page: %w", err)
	}
	if lp == nil {
		return nil, ErrNotFound
	}

	snap, err := p.begin(ctx, st, lpID)
	if err != nil {
		return nil, err
	}
	log = log.With("snapshot_id", snap.ID)
	log.Info("pipeline: analysis started", "url", lp.URL)

	result, ref, path, err := p.acquire(ctx, lp.URL, snap.ID)
	if err != nil {
		return nil, p.fail(ctx, st, log, lp, snap, path, start, err)
	}

	encoded, err := analysis.Encode(result)
	if err != nil {
		return nil, p.fail(ctx, st, log, lp, snap, path, start, err)
	}
	var shot *string
	if ref != "" {
		shot = &ref
	}
	version, err := st.MarkDone(context.WithoutCancel(ctx), snap.ID, shot, encoded)
	if err != nil {
		return nil, p.fail(ctx, st, log, lp, snap, path, start, fmt.Errorf("persist result: %w", err))
	}

	snap.Status = store.StatusDone
	snap.ScreenshotPath = shot
	snap.AnalysisResult = &encoded
	snap.ErrorMessage = nil
	snap.Version = version

	dur := time.Since(start)
	log.Info("pipeline: analysis done", "path", path, "version", version, "duration_ms", dur.Milliseconds())
	p.event(ctx, "analysis_done", lp, snap, path, true, dur, "")
	return &Outcome{Snapshot: snap, Result: result, Path: path}, nil
}

// begin makes the attempt visible: the reused row or a new one is in
// analyzing before any slow call starts.
func (p *Pipeline) begin(ctx context.Context, st *store.Store, lpID string) (*store.Snapshot, error) {
	latest, err := st.LatestSnapshot(ctx, lpID)
	if err != nil {
		return nil, fmt.Errorf("pipeline: load latest snapshot: %w", err)
	}
	if latest == nil || latest.Status == store.StatusDone {
		snap, err := st.InsertSnapshot(ctx, p.cfg.NewID(), lpID, store.StatusAnalyzing)
		if err != nil {
			return nil, fmt.Errorf("pipeline: %w", err)
		}
		return snap, nil
	}
	if err := st.MarkAnalyzing(ctx, latest.ID); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	latest.Status = store.StatusAnalyzing
	latest.ErrorMessage = nil
	latest.AnalysisResult = nil
	return latest, nil
}

// acquire runs the screenshot path, falling back to metadata when no image
// could be captured.
func (p *Pipeline) acquire(ctx context.Context, url, snapshotID string) (*analysis.Result, string, analysis.Path, error) {
	if ref := p.cfg.Capturer.Capture(ctx, url, snapshotID); ref != "" {
		r, err := p.cfg.Analyzer.AnalyzeImage(ctx, ref)
		return r, ref, analysis.PathImage, err
	}

	p.cfg.Logger.Info("pipeline: no screenshot, using metadata", "snapshot_id", snapshotID, "url", url)
	md := p.cfg.Fetcher.Fetch(ctx, url)
	r, err := p.cfg.Analyzer.AnalyzeText(ctx, analysis.TextInput{
		URL:         url,
		Title:       md.Title,
		Description: md.Description,
		Headings:    md.Headings,
		Excerpt:     md.Excerpt,
	})
	return r, "", analysis.PathText, err
}

// fail records cause on the snapshot. The write uses a context detached
// from cancellation so a timed-out attempt is still recorded.
func (p *Pipeline) fail(ctx context.Context, st *store.Store, log *slog.Logger, lp *store.LandingPage,
	snap *store.Snapshot, path analysis.Path, start time.Time, cause error) error {
	dur := time.Since(start)
	msg := cause.Error()
	log.Error("pipeline: analysis failed", "path", path, "error", cause, "duration_ms", dur.Milliseconds())

	if err := st.MarkError(context.WithoutCancel(ctx), snap.ID, msg); err != nil {
		log.Error("pipeline: record failure", "error", err)
	} else {
		snap.Status = store.StatusError
		snap.ErrorMessage = &msg
	}
	p.event(ctx, "analysis_error", lp, snap, path, false, dur, msg)
	return &Error{SnapshotID: snap.ID, Err: cause}
}

func (p *Pipeline) event(ctx context.Context, typ string, lp *store.LandingPage, snap *store.Snapshot,
	path analysis.Path, ok bool, dur time.Duration, errMsg string) {
	if p.cfg.Events == nil {
		return
	}
	details, _ := json.Marshal(map[string]any{
		"path":        path,
		"snapshot_id": snap.ID,
		"version":     snap.Version,
		"error":       errMsg,
		"trigger":     kit.GetTransport(ctx),
	})
	p.cfg.Events.LogEvent(context.WithoutCancel(ctx), observability.BusinessEvent{
		EventType:   typ,
		ServiceName: "lplens",
		EntityType:  "landing_page",
		EntityID:    lp.ID,
		UserID:      lp.AccountID,
		Action:      "analyze",
		Details:     string(details),
		Success:     ok,
		Duration:    dur,
	})
}
