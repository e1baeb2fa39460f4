// CLAUDE:SUMMARY Sentinel errors for the lplens service: not found, invalid input, quota exceeded, analysis failed.
package lplens

import "errors"

// ErrNotFound is returned when a landing page does not exist or belongs to
// another account, and by Share when no analysis is done yet.
var ErrNotFound = errors.New("lplens: not found")

// ErrInvalidInput is returned when request input fails validation. No state
// is changed.
var ErrInvalidInput = errors.New("lplens: invalid input")

// ErrQuotaExceeded is returned when the quota hook refuses a new landing page.
var ErrQuotaExceeded = errors.New("lplens: quota exceeded")

// ErrAnalysisFailed is returned when an analysis attempt failed. The cause
// is wrapped and recorded on the snapshot; callers should show a generic
// retry message.
var ErrAnalysisFailed = errors.New("lplens: analysis failed")

var failureMessages = map[string]string{
	"ja": "分析中にエラーが発生しました。しばらくしてから再試行してください。",
	"en": "An error occurred during analysis. Please try again later.",
}

// FailureMessage is the client-facing text for ErrAnalysisFailed in the
// configured language. The detailed cause stays in logs and on the snapshot.
func (svc *Service) FailureMessage() string {
	if m, ok := failureMessages[svc.config.Language]; ok {
		return m
	}
	return failureMessages["ja"]
}
