// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and records every statement: a slog line (Debug,
// Warn when slow, Error on failure) and, when a Recorder is installed, a row
// in sql_traces. The request trace id set by shield.TraceID is attached, so
// a slow analysis request can be followed down to its queries.
//
//	import "github.com/hazyhaar/lplens/trace"
//
//	obs, _ := dbopen.Open("data/events.db")      // raw "sqlite" driver
//	rec := trace.NewStore(obs)
//	rec.Init()
//	trace.SetRecorder(rec)
//
//	db, _ := dbopen.Open("data/lplens.db", dbopen.WithDriver(trace.DriverName))
package trace

import (
	"database/sql"
	"sync"
	"time"

	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// SlowQuery is the duration above which a statement is logged at Warn.
const SlowQuery = 100 * time.Millisecond

// Entry is one traced statement.
type Entry struct {
	TraceID    string
	Op         string // Exec | Query
	Query      string
	DurationUs int64
	Error      string
	Timestamp  int64 // unix microseconds
}

// Recorder persists entries. RecordAsync must not block.
type Recorder interface {
	RecordAsync(e *Entry)
	Close() error
}

var (
	recorderMu sync.RWMutex
	recorder   Recorder
)

// SetRecorder installs the process-wide recorder. nil keeps slog only.
func SetRecorder(r Recorder) {
	recorderMu.Lock()
	recorder = r
	recorderMu.Unlock()
}

func currentRecorder() Recorder {
	recorderMu.RLock()
	defer recorderMu.RUnlock()
	return recorder
}

func init() {
	sql.Register(DriverName, &Driver{Driver: &sqlite.Driver{}})
}
