package lplens

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/lplens/dbopen"
	"github.com/hazyhaar/lplens/idgen"
	"github.com/hazyhaar/lplens/lplens/internal/analysis"
	"github.com/hazyhaar/lplens/lplens/internal/metadata"
	"github.com/hazyhaar/lplens/lplens/internal/screenshot"
	"github.com/hazyhaar/lplens/observability"

	_ "modernc.org/sqlite"
)

const testReply = `Here is the analysis:
{
  "sections": [
    {"type": "hero", "label": "Hero", "description": "Main visual", "position": "top", "elements": ["headline", "cta"]},
    {"type": "problem", "label": "Pain", "description": "Problem", "position": "upper", "elements": []},
    {"type": "features", "label": "Features", "description": "Features", "position": "middle", "elements": ["a"]},
    {"type": "social_proof", "label": "Logos", "description": "Clients", "position": "lower", "elements": ["logos"]},
    {"type": "cta", "label": "Signup", "description": "Final CTA", "position": "bottom", "elements": ["button"]}
  ],
  "informationDesign": {
    "firstViewSummary": "Clear value proposition",
    "ctaCount": 3,
    "ctaPositions": ["hero", "middle", "bottom"],
    "textVisualRatio": "60:40",
    "structureScore": 74,
    "strengths": ["clear headline"],
    "improvements": ["more proof"]
  },
  "designTone": {
    "colorPalette": ["#1a1a2e", "#e94560"],
    "colorMood": "trustworthy",
    "fontStyle": "sans-serif",
    "whitespaceLevel": "medium",
    "overallImpression": "clean",
    "designScore": 82
  },
  "summary": "Solid LP."
}`

// pngHeader is enough for content sniffing.
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fileCapturer struct {
	storage *screenshot.Storage
	fail    bool
}

func (c *fileCapturer) Capture(_ context.Context, _, id string) string {
	if c.fail {
		return ""
	}
	ref, err := c.storage.Save(id, time.Now(), pngHeader)
	if err != nil {
		return ""
	}
	return ref
}

type staticFetcher struct{ md metadata.Metadata }

func (f staticFetcher) Fetch(context.Context, string) metadata.Metadata { return f.md }

type scriptedCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []analysis.Request
}

func (c *scriptedCompleter) Complete(_ context.Context, req analysis.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqs = append(c.reqs, req)
	return c.reply, c.err
}

type memEvents struct {
	mu     sync.Mutex
	events []observability.BusinessEvent
}

func (m *memEvents) LogEvent(_ context.Context, e observability.BusinessEvent) {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
}

func (m *memEvents) all() []observability.BusinessEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]observability.BusinessEvent(nil), m.events...)
}

type harness struct {
	svc       *Service
	capturer  *fileCapturer
	completer *scriptedCompleter
	dir       string
}

func allowAll(string) error { return nil }

func newHarness(t *testing.T, opts ...ServiceOption) *harness {
	t.Helper()
	db := dbopen.OpenMemory(t)
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ScreenshotDir = dir
	cfg.Scheduler.Enabled = false

	h := &harness{
		capturer:  &fileCapturer{storage: screenshot.NewStorage(dir)},
		completer: &scriptedCompleter{reply: testReply},
		dir:       dir,
	}
	base := []ServiceOption{
		WithURLValidator(allowAll),
		WithCapturer(h.capturer),
		WithFetcher(staticFetcher{md: metadata.Metadata{Title: "Example"}}),
		WithCompleter(h.completer),
		WithIDGenerator(idgen.Sequence("id")),
	}
	svc, err := New(db, cfg, nil, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.svc = svc
	return h
}

func TestCreateLandingPage_PendingFirstSnapshot(t *testing.T) {
	// WHAT: a new landing page starts with one pending v1 snapshot.
	// WHY: the scheduler and the UI both rely on this initial row.
	h := newHarness(t)
	ctx := context.Background()

	lp, err := h.svc.CreateLandingPage(ctx, "acc-1", "example.com/lp", "  Spring campaign ")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if lp.URL != "https://example.com/lp" {
		t.Errorf("url = %q", lp.URL)
	}
	if lp.Name == nil || *lp.Name != "Spring campaign" {
		t.Errorf("name = %v", lp.Name)
	}

	got, err := h.svc.GetLandingPage(ctx, "acc-1", lp.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(got.Snapshots))
	}
	s := got.Snapshots[0]
	if s.Status != StatusPending || s.Version != 1 {
		t.Errorf("snapshot = %s v%d, want pending v1", s.Status, s.Version)
	}
}

func TestCreateLandingPage_Invalid(t *testing.T) {
	// WHAT: invalid input is rejected with ErrInvalidInput and stores nothing.
	h := newHarness(t)
	ctx := context.Background()

	cases := []struct{ account, url, name string }{
		{"acc-1", "", ""},
		{"acc-1", "   ", ""},
		{"acc-1", "ftp://example.com", ""},
		{"acc-1", "https://", ""},
		{"acc-1", "exa mple.com", ""},
		{"", "example.com", ""},
		{"acc-1", "example.com", strings.Repeat("x", maxNameLen+1)},
	}
	for _, c := range cases {
		if _, err := h.svc.CreateLandingPage(ctx, c.account, c.url, c.name); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("create(%q, %q): err = %v, want ErrInvalidInput", c.account, c.url, err)
		}
	}
	lps, err := h.svc.ListLandingPages(ctx, "acc-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(lps) != 0 {
		t.Errorf("stored %d landing pages", len(lps))
	}
}

func TestCreateLandingPage_DefaultValidatorBlocksLoopback(t *testing.T) {
	// WHAT: without an override, private addresses are refused at creation.
	// WHY: the capturer and the fetcher would otherwise reach internal hosts.
	db := dbopen.OpenMemory(t)
	cfg := DefaultConfig()
	cfg.ScreenshotDir = t.TempDir()
	svc, err := New(db, cfg, nil, WithCompleter(&scriptedCompleter{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = svc.CreateLandingPage(context.Background(), "acc-1", "http://127.0.0.1:8080/admin", "")
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestCreateLandingPage_Quota(t *testing.T) {
	// WHAT: the quota hook sees the current count and can refuse creation.
	var seen []int
	h := newHarness(t, WithQuota(func(_ context.Context, _ string, count int) error {
		seen = append(seen, count)
		if count >= 1 {
			return errors.New("plan limit reached")
		}
		return nil
	}))
	ctx := context.Background()

	if _, err := h.svc.CreateLandingPage(ctx, "acc-1", "example.com/a", ""); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := h.svc.CreateLandingPage(ctx, "acc-1", "example.com/b", "")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("second create: err = %v, want ErrQuotaExceeded", err)
	}
	if len(seen) != 2 || seen[0] != 0 || seen[1] != 1 {
		t.Errorf("quota counts = %v, want [0 1]", seen)
	}
}

func TestAnalyze_ImagePath(t *testing.T) {
	// WHAT: a successful capture is analyzed from the image and stored done v1.
	h := newHarness(t)
	ctx := context.Background()
	lp, _ := h.svc.CreateLandingPage(ctx, "acc-1", "https://example.com/lp", "")

	out, err := h.svc.Analyze(ctx, "acc-1", lp.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Path != "image" {
		t.Errorf("path = %q, want image", out.Path)
	}
	if out.Snapshot.Status != StatusDone || out.Snapshot.Version != 1 {
		t.Errorf("snapshot = %s v%d, want done v1", out.Snapshot.Status, out.Snapshot.Version)
	}
	if out.Snapshot.ScreenshotPath == nil || !strings.HasPrefix(*out.Snapshot.ScreenshotPath, "/screenshots/") {
		t.Errorf("screenshot path = %v", out.Snapshot.ScreenshotPath)
	}
	if out.AnalysisResult.DesignTone.DesignScore != 82 || out.AnalysisResult.InformationDesign.StructureScore != 74 {
		t.Errorf("scores = %d/%d", out.AnalysisResult.DesignTone.DesignScore, out.AnalysisResult.InformationDesign.StructureScore)
	}
	if len(h.completer.reqs) != 1 || h.completer.reqs[0].MediaType != "image/png" {
		t.Errorf("requests = %+v", h.completer.reqs)
	}
}

func TestAnalyze_TextFallback(t *testing.T) {
	// WHAT: a failed capture falls back to metadata; the result carries the
	// low-confidence markers and no screenshot.
	h := newHarness(t)
	h.capturer.fail = true
	ctx := context.Background()
	lp, _ := h.svc.CreateLandingPage(ctx, "acc-1", "https://example.com/lp", "")

	out, err := h.svc.Analyze(ctx, "acc-1", lp.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if out.Path != "text" || out.Snapshot.ScreenshotPath != nil {
		t.Errorf("path = %q, screenshot = %v", out.Path, out.Snapshot.ScreenshotPath)
	}
	if out.AnalysisResult.DesignTone.DesignScore != 0 || len(out.AnalysisResult.DesignTone.ColorPalette) != 0 {
		t.Errorf("fallback markers missing: %+v", out.AnalysisResult.DesignTone)
	}
	if !strings.Contains(h.completer.reqs[0].Prompt, "Example") {
		t.Error("text prompt does not carry the page title")
	}
}

func TestAnalyze_FailureIsRecorded(t *testing.T) {
	// WHAT: a service failure leaves the snapshot in error and surfaces
	// ErrAnalysisFailed; the public message does not leak the cause.
	h := newHarness(t)
	h.completer.err = errors.New("upstream 529 overloaded")
	ctx := context.Background()
	lp, _ := h.svc.CreateLandingPage(ctx, "acc-1", "https://example.com/lp", "")

	_, err := h.svc.Analyze(ctx, "acc-1", lp.ID)
	if !errors.Is(err, ErrAnalysisFailed) {
		t.Fatalf("err = %v, want ErrAnalysisFailed", err)
	}
	got, _ := h.svc.GetLandingPage(ctx, "acc-1", lp.ID)
	s := got.Snapshots[0]
	if s.Status != StatusError || s.ErrorMessage == nil || !strings.Contains(*s.ErrorMessage, "529") {
		t.Errorf("snapshot = %s %v", s.Status, s.ErrorMessage)
	}
	if strings.Contains(h.svc.FailureMessage(), "529") {
		t.Error("failure message leaks the cause")
	}
}

func TestAnalyze_RetryAndHistory(t *testing.T) {
	// WHAT: a retry after an error reuses the row; analyzing a done page
	// appends a new version.
	h := newHarness(t)
	ctx := context.Background()
	lp, _ := h.svc.CreateLandingPage(ctx, "acc-1", "https://example.com/lp", "")

	h.completer.err = errors.New("boom")
	h.svc.Analyze(ctx, "acc-1", lp.ID)
	h.completer.err = nil

	first, err := h.svc.Analyze(ctx, "acc-1", lp.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	second, err := h.svc.Analyze(ctx, "acc-1", lp.ID)
	if err != nil {
		t.Fatalf("reanalyze: %v", err)
	}
	if first.Snapshot.Version != 1 || second.Snapshot.Version != 2 {
		t.Errorf("versions = %d, %d, want 1, 2", first.Snapshot.Version, second.Snapshot.Version)
	}
	got, _ := h.svc.GetLandingPage(ctx, "acc-1", lp.ID)
	if len(got.Snapshots) != 2 || got.Snapshots[0].ID != second.Snapshot.ID {
		t.Errorf("history = %d rows, newest %s", len(got.Snapshots), got.Snapshots[0].ID)
	}
}

func TestOwnership(t *testing.T) {
	// WHAT: another account sees ErrNotFound for get, analyze and delete.
	h := newHarness(t)
	ctx := context.Background()
	lp, _ := h.svc.CreateLandingPage(ctx, "acc-1", "https://example.com/lp", "")

	if _, err := h.svc.GetLandingPage(ctx, "acc-2", lp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get: %v", err)
	}
	if _, err := h.svc.Analyze(ctx, "acc-2", lp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("analyze: %v", err)
	}
	if err := h.svc.DeleteLandingPage(ctx, "acc-2", lp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete: %v", err)
	}
	if len(h.completer.reqs) != 0 {
		t.Error("analysis ran for a foreign account")
	}
}

func TestShare(t *testing.T) {
	// WHAT: share is 404 until an analysis is done, then returns the latest
	// done result without an ownership check.
	h := newHarness(t)
	ctx := context.Background()
	lp, _ := h.svc.CreateLandingPage(ctx, "acc-1", "https://example.com/lp", "LP")

	if _, err := h.svc.Share(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown: %v", err)
	}
	if _, err := h.svc.Share(ctx, lp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("pending: %v", err)
	}

	out, err := h.svc.Analyze(ctx, "acc-1", lp.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	// A later failed attempt does not hide the done result.
	h.completer.err = errors.New("boom")
	h.svc.Analyze(ctx, "acc-1", lp.ID)

	view, err := h.svc.Share(ctx, lp.ID)
	if err != nil {
		t.Fatalf("share: %v", err)
	}
	if view.URL != lp.URL || view.Name == nil || *view.Name != "LP" {
		t.Errorf("view = %+v", view)
	}
	if view.AnalysisResult.Summary != "Solid LP." || view.AnalyzedAt == 0 {
		t.Errorf("result = %+v analyzedAt=%d", view.AnalysisResult, view.AnalyzedAt)
	}
	if view.ScreenshotPath == nil || *view.ScreenshotPath != *out.Snapshot.ScreenshotPath {
		t.Errorf("screenshot = %v", view.ScreenshotPath)
	}
}

func TestDeleteLandingPage_RemovesScreenshots(t *testing.T) {
	// WHAT: delete cascades to snapshots and removes their files.
	h := newHarness(t)
	ctx := context.Background()
	lp, _ := h.svc.CreateLandingPage(ctx, "acc-1", "https://example.com/lp", "")
	out, err := h.svc.Analyze(ctx, "acc-1", lp.ID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	path, err := h.capturer.storage.Resolve(*out.Snapshot.ScreenshotPath)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("screenshot not written: %v", err)
	}

	if err := h.svc.DeleteLandingPage(ctx, "acc-1", lp.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("screenshot still present: %v", err)
	}
	if _, err := h.svc.GetLandingPage(ctx, "acc-1", lp.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete: %v", err)
	}
}

func TestListLandingPages_Empty(t *testing.T) {
	h := newHarness(t)
	lps, err := h.svc.ListLandingPages(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if lps == nil || len(lps) != 0 {
		t.Errorf("lps = %v, want empty non-nil", lps)
	}
}

func TestNew_RequiresReasoningKey(t *testing.T) {
	// WHAT: the default anthropic client cannot be built without a key.
	db := dbopen.OpenMemory(t)
	cfg := DefaultConfig()
	cfg.ScreenshotDir = t.TempDir()
	if _, err := New(db, cfg, nil); err == nil {
		t.Fatal("expected error without API key")
	}
	cfg.Reasoning.APIKey = "sk-test"
	if _, err := New(db, cfg, nil); err != nil {
		t.Fatalf("with key: %v", err)
	}
}

func TestStart_SchedulerAnalyzesPending(t *testing.T) {
	// WHAT: with the scheduler on, a pending snapshot is analyzed without
	// an explicit trigger, and the event names the scheduler as trigger.
	db := dbopen.OpenMemory(t)
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ScreenshotDir = dir
	cfg.Scheduler.PollInterval = 10 * time.Millisecond
	completer := &scriptedCompleter{reply: testReply}
	events := &memEvents{}
	svc, err := New(db, cfg, nil,
		WithEvents(events),
		WithURLValidator(allowAll),
		WithCapturer(&fileCapturer{storage: screenshot.NewStorage(dir)}),
		WithFetcher(staticFetcher{}),
		WithCompleter(completer),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lp, err := svc.CreateLandingPage(ctx, "acc-1", "https://example.com/lp", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	svc.Start(ctx)
	defer svc.Close()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := svc.GetLandingPage(ctx, "acc-1", lp.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		// The event is emitted right after the done write.
		if evs := events.all(); got.Snapshots[0].Status == StatusDone && len(evs) > 0 {
			if len(evs) != 1 || !strings.Contains(evs[0].Details, `"trigger":"scheduler"`) {
				t.Errorf("events = %+v", evs)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("pending snapshot was not analyzed")
}
