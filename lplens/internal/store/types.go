package store

// Status is the lifecycle state of a Snapshot.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAnalyzing Status = "analyzing"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// Valid reports whether s is one of the four known states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAnalyzing, StatusDone, StatusError:
		return true
	}
	return false
}

// LandingPage is a tracked URL owned by one account.
type LandingPage struct {
	ID        string      `json:"id"`
	AccountID string      `json:"accountId"`
	URL       string      `json:"url"`
	Name      *string     `json:"name"`
	CreatedAt int64       `json:"createdAt"`
	Snapshots []*Snapshot `json:"snapshots,omitempty"`
}

// Snapshot is one analysis attempt of a landing page. AnalysisResult holds
// the serialized structured result and is set only in status done.
type Snapshot struct {
	ID             string  `json:"id"`
	LandingPageID  string  `json:"landingPageId"`
	Status         Status  `json:"status"`
	ScreenshotPath *string `json:"screenshotPath"`
	AnalysisResult *string `json:"analysisResult"`
	ErrorMessage   *string `json:"errorMessage"`
	Version        int     `json:"version"`
	CreatedAt      int64   `json:"createdAt"`
	UpdatedAt      int64   `json:"updatedAt"`
}

// PendingJob identifies a pending snapshot together with its owner.
type PendingJob struct {
	SnapshotID    string `json:"snapshotId"`
	LandingPageID string `json:"landingPageId"`
	AccountID     string `json:"accountId"`
	URL           string `json:"url"`
}
