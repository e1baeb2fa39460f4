package lplens

import (
	"github.com/hazyhaar/lplens/lplens/internal/analysis"
	"github.com/hazyhaar/lplens/lplens/internal/metadata"
	"github.com/hazyhaar/lplens/lplens/internal/store"
)

// Re-exported types so callers need not import internal packages.
type (
	LandingPage    = store.LandingPage
	Snapshot       = store.Snapshot
	Status         = store.Status
	AnalysisResult = analysis.Result

	// Collaborator payloads, for callers supplying their own
	// MetadataFetcher or Completer.
	Metadata          = metadata.Metadata
	TextInput         = analysis.TextInput
	CompletionRequest = analysis.Request
)

const (
	StatusPending   = store.StatusPending
	StatusAnalyzing = store.StatusAnalyzing
	StatusDone      = store.StatusDone
	StatusError     = store.StatusError
)

// ShareView is the public projection of a landing page's latest done
// analysis. AnalyzedAt is the epoch-ms time the result was written.
type ShareView struct {
	ID             string          `json:"id"`
	URL            string          `json:"url"`
	Name           *string         `json:"name"`
	AnalysisResult *AnalysisResult `json:"analysisResult"`
	ScreenshotPath *string         `json:"screenshotPath"`
	AnalyzedAt     int64           `json:"analyzedAt"`
}
