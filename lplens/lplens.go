// CLAUDE:SUMMARY Main Service: landing page lifecycle, analysis dispatch, public share view, background sweeper and scheduler.
// CLAUDE:DEPENDS store, pipeline, screenshot, metadata, analysis, repair, scheduler
// CLAUDE:EXPORTS Service, New, ServiceOption, Analysis
package lplens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/hazyhaar/lplens/horosafe"
	"github.com/hazyhaar/lplens/idgen"
	"github.com/hazyhaar/lplens/kit"
	"github.com/hazyhaar/lplens/lplens/internal/analysis"
	"github.com/hazyhaar/lplens/lplens/internal/metadata"
	"github.com/hazyhaar/lplens/lplens/internal/pipeline"
	"github.com/hazyhaar/lplens/lplens/internal/repair"
	"github.com/hazyhaar/lplens/lplens/internal/scheduler"
	"github.com/hazyhaar/lplens/lplens/internal/screenshot"
	"github.com/hazyhaar/lplens/lplens/internal/store"
)

// Collaborator interfaces, overridable with options.
type (
	Capturer        = pipeline.Capturer
	MetadataFetcher = pipeline.MetadataFetcher
	Analyzer        = pipeline.Analyzer
	EventSink       = pipeline.EventSink
	Completer       = analysis.Completer
)

// QuotaFunc decides whether accountID, which owns count landing pages, may
// create another. A non-nil error refuses the creation.
type QuotaFunc func(ctx context.Context, accountID string, count int) error

// Service is the lplens orchestrator.
type Service struct {
	store     *store.Store
	storage   *screenshot.Storage
	pipeline  *pipeline.Pipeline
	scheduler *scheduler.Scheduler
	sweeper   *repair.Sweeper
	logger    *slog.Logger
	config    *Config

	capturer     Capturer
	fetcher      MetadataFetcher
	analyzer     Analyzer
	completer    Completer
	events       EventSink
	quota        QuotaFunc
	newID        idgen.Generator
	urlValidator func(string) error
}

// ServiceOption configures a Service during creation.
type ServiceOption func(*Service)

// WithURLValidator overrides the URL validation function (default: horosafe.ValidateURL).
// Use in tests with httptest servers that listen on loopback addresses.
func WithURLValidator(fn func(string) error) ServiceOption {
	return func(svc *Service) { svc.urlValidator = fn }
}

// WithQuota installs the plan-limit hook consulted before creation.
func WithQuota(fn QuotaFunc) ServiceOption {
	return func(svc *Service) { svc.quota = fn }
}

// WithEvents records analysis outcomes as business events.
func WithEvents(sink EventSink) ServiceOption {
	return func(svc *Service) { svc.events = sink }
}

// WithCapturer replaces the browser screenshot capturer.
func WithCapturer(c Capturer) ServiceOption {
	return func(svc *Service) { svc.capturer = c }
}

// WithFetcher replaces the HTTP metadata fetcher.
func WithFetcher(f MetadataFetcher) ServiceOption {
	return func(svc *Service) { svc.fetcher = f }
}

// WithAnalyzer replaces the analysis engine entirely.
func WithAnalyzer(a Analyzer) ServiceOption {
	return func(svc *Service) { svc.analyzer = a }
}

// WithCompleter keeps the analysis engine but replaces the reasoning-service
// client under it.
func WithCompleter(c Completer) ServiceOption {
	return func(svc *Service) { svc.completer = c }
}

// WithIDGenerator sets the generator for landing page and snapshot ids.
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(svc *Service) { svc.newID = gen }
}

// New creates a Service on db. The schema is applied if missing.
func New(db *sql.DB, cfg *Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	if err := store.ApplySchema(db); err != nil {
		return nil, fmt.Errorf("lplens: apply schema: %w", err)
	}

	svc := &Service{
		store:        store.NewStore(db),
		storage:      screenshot.NewStorage(cfg.ScreenshotDir),
		logger:       logger,
		config:       cfg,
		newID:        idgen.Default,
		urlValidator: horosafe.ValidateURL,
	}
	for _, opt := range opts {
		opt(svc)
	}

	if svc.capturer == nil {
		svc.capturer = screenshot.New(screenshot.Config{
			RemoteURL:  cfg.Browser.RemoteURL,
			BrowserBin: cfg.Browser.Bin,
			Stealth:    cfg.Browser.Stealth,
			Width:      cfg.Browser.Width,
			Height:     cfg.Browser.Height,
			NavTimeout: cfg.Browser.NavTimeout,
			Settle:     cfg.Browser.Settle,
			Timeout:    cfg.Browser.Timeout,
			Logger:     logger,
		}, svc.storage)
	}
	if svc.fetcher == nil {
		svc.fetcher = metadata.New(metadata.Config{
			Timeout:      cfg.Metadata.Timeout,
			MaxBytes:     cfg.Metadata.MaxBytes,
			UserAgent:    cfg.Metadata.UserAgent,
			URLValidator: svc.urlValidator,
			Logger:       logger,
		})
	}
	if svc.analyzer == nil {
		if svc.completer == nil {
			client, err := analysis.NewClient(analysis.ClientConfig{
				Protocol:   analysis.Protocol(cfg.Reasoning.Protocol),
				Endpoint:   cfg.Reasoning.Endpoint,
				APIKey:     cfg.Reasoning.APIKey,
				Model:      cfg.Reasoning.Model,
				Timeout:    cfg.Reasoning.Timeout,
				MaxRetries: cfg.Reasoning.MaxRetries,
				Logger:     logger,
			})
			if err != nil {
				return nil, fmt.Errorf("lplens: reasoning client: %w", err)
			}
			svc.completer = client
		}
		svc.analyzer = analysis.NewEngine(svc.completer, svc.storage, analysis.EngineConfig{
			Language:       analysis.Language(cfg.Language),
			ImageMaxTokens: cfg.Reasoning.ImageMaxTokens,
			TextMaxTokens:  cfg.Reasoning.TextMaxTokens,
			Logger:         logger,
		})
	}

	svc.pipeline = pipeline.New(pipeline.Config{
		Capturer: svc.capturer,
		Fetcher:  svc.fetcher,
		Analyzer: svc.analyzer,
		Events:   svc.events,
		NewID:    svc.newID,
		Logger:   logger,
	})
	svc.sweeper = repair.NewSweeper(svc.store, repair.SweepConfig{
		Interval:   cfg.Repair.Interval,
		StaleAfter: cfg.Repair.StaleAfter,
	}, logger)
	if cfg.Scheduler.Enabled {
		svc.scheduler = scheduler.New(svc.store, svc.processJob, scheduler.Config{
			PollInterval: cfg.Scheduler.PollInterval,
			Concurrency:  cfg.Scheduler.Concurrency,
		}, logger)
	}
	return svc, nil
}

// Start launches the background sweeper and, when enabled, the scheduler.
// Non-blocking.
func (svc *Service) Start(ctx context.Context) {
	go svc.sweeper.Run(ctx)
	if svc.scheduler != nil {
		go svc.scheduler.Run(ctx)
	}
	svc.logger.Info("lplens: started", "scheduler", svc.scheduler != nil)
}

// Close shuts down the service and releases the capturer's browser
// connection when it holds one.
func (svc *Service) Close() error {
	var err error
	if c, ok := svc.capturer.(io.Closer); ok {
		err = c.Close()
	}
	svc.logger.Info("lplens: closed")
	return err
}

// ScreenshotDir returns the directory screenshot references resolve into.
func (svc *Service) ScreenshotDir() string { return svc.storage.Root }

// CreateLandingPage validates rawURL, checks the quota hook and stores the
// landing page together with its pending first snapshot.
func (svc *Service) CreateLandingPage(ctx context.Context, accountID, rawURL, name string) (*LandingPage, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account is required", ErrInvalidInput)
	}
	u, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if err := svc.urlValidator(u); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	display, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	if svc.quota != nil {
		count, err := svc.store.CountLandingPages(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("lplens: count landing pages: %w", err)
		}
		if err := svc.quota(ctx, accountID, count); err != nil {
			if errors.Is(err, ErrQuotaExceeded) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
	}

	lp := &LandingPage{ID: svc.newID(), AccountID: accountID, URL: u, Name: display}
	if _, err := svc.store.CreateLandingPage(ctx, lp, svc.newID()); err != nil {
		return nil, fmt.Errorf("lplens: create landing page: %w", err)
	}
	svc.logger.Info("lplens: landing page created", "lp_id", lp.ID, "url", lp.URL)
	return lp, nil
}

// GetLandingPage returns the landing page with its snapshot history, newest
// first.
func (svc *Service) GetLandingPage(ctx context.Context, accountID, id string) (*LandingPage, error) {
	lp, err := svc.store.GetLandingPage(ctx, accountID, id)
	if err != nil {
		return nil, fmt.Errorf("lplens: get landing page: %w", err)
	}
	if lp == nil {
		return nil, ErrNotFound
	}
	snaps, err := svc.store.ListSnapshots(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lplens: list snapshots: %w", err)
	}
	lp.Snapshots = snaps
	return lp, nil
}

// ListLandingPages returns the account's landing pages, newest first, each
// with its latest snapshot.
func (svc *Service) ListLandingPages(ctx context.Context, accountID string) ([]*LandingPage, error) {
	lps, err := svc.store.ListLandingPages(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("lplens: list landing pages: %w", err)
	}
	if lps == nil {
		lps = []*LandingPage{}
	}
	return lps, nil
}

// DeleteLandingPage removes the landing page and its snapshots. Screenshot
// files are removed best-effort afterwards.
func (svc *Service) DeleteLandingPage(ctx context.Context, accountID, id string) error {
	snaps, err := svc.store.ListSnapshots(ctx, id)
	if err != nil {
		return fmt.Errorf("lplens: list snapshots: %w", err)
	}
	ok, err := svc.store.DeleteLandingPage(ctx, accountID, id)
	if err != nil {
		return fmt.Errorf("lplens: delete landing page: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	for _, s := range snaps {
		if s.ScreenshotPath == nil {
			continue
		}
		path, err := svc.storage.Resolve(*s.ScreenshotPath)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			svc.logger.Warn("lplens: remove screenshot", "path", path, "error", err)
		}
	}
	svc.logger.Info("lplens: landing page deleted", "lp_id", id, "snapshots", len(snaps))
	return nil
}

// Analysis is a completed analysis attempt.
type Analysis struct {
	Snapshot       *Snapshot       `json:"snapshot"`
	AnalysisResult *AnalysisResult `json:"analysisResult"`
	Path           string          `json:"path"`
}

// Analyze runs one analysis attempt of the landing page. A failed attempt
// is recorded on its snapshot and returned as ErrAnalysisFailed wrapping
// the cause.
func (svc *Service) Analyze(ctx context.Context, accountID, id string) (*Analysis, error) {
	out, err := svc.pipeline.Run(ctx, svc.store, accountID, id)
	if err != nil {
		return nil, svc.mapRunError(err)
	}
	return &Analysis{Snapshot: out.Snapshot, AnalysisResult: out.Result, Path: string(out.Path)}, nil
}

func (svc *Service) mapRunError(err error) error {
	var runErr *pipeline.Error
	switch {
	case errors.Is(err, pipeline.ErrNotFound):
		return ErrNotFound
	case errors.As(err, &runErr):
		return fmt.Errorf("%w: %w", ErrAnalysisFailed, err)
	default:
		return err
	}
}

// processJob is the scheduler sink: the claimed snapshot is analyzed on
// behalf of its owner.
func (svc *Service) processJob(ctx context.Context, job store.PendingJob) error {
	ctx = kit.WithTransport(ctx, kit.TransportScheduler)
	_, err := svc.pipeline.Run(ctx, svc.store, job.AccountID, job.LandingPageID)
	return svc.mapRunError(err)
}

// Share returns the public view of the landing page's latest done analysis.
// No ownership check is made. ErrNotFound covers both an unknown landing
// page and one without a done analysis.
func (svc *Service) Share(ctx context.Context, id string) (*ShareView, error) {
	lp, err := svc.store.GetLandingPageByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lplens: get landing page: %w", err)
	}
	if lp == nil {
		return nil, ErrNotFound
	}
	snap, err := svc.store.LatestDoneSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lplens: latest done snapshot: %w", err)
	}
	if snap == nil || snap.AnalysisResult == nil {
		return nil, ErrNotFound
	}
	result, err := analysis.Decode(*snap.AnalysisResult)
	if err != nil {
		return nil, fmt.Errorf("lplens: decode analysis %s: %w", snap.ID, err)
	}
	return &ShareView{
		ID:             lp.ID,
		URL:            lp.URL,
		Name:           lp.Name,
		AnalysisResult: result,
		ScreenshotPath: snap.ScreenshotPath,
		AnalyzedAt:     snap.UpdatedAt,
	}, nil
}
