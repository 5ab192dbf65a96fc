package models

import (
	"time"
)

// FileSummary holds the ingestion outcome for one station file
type FileSummary struct {
	Path             string            `json:"path"`
	StationID        string            `json:"station_id"`
	Succeeded        bool              `json:"succeeded"`
	Error            string            `json:"error,omitempty"`
	RecordsProcessed int               `json:"records_processed"`
	RecordsInserted  int               `json:"records_inserted"`
	RecordsSkipped   int               `json:"records_skipped"`
	RecordsRejected  int               `json:"records_rejected"`
	RejectedByReason map[ErrorKind]int `json:"rejected_by_reason,omitempty"`
	Duration         time.Duration     `json:"duration_ns"`
}

// Reject counts one rejected line under kind
func (f *FileSummary) Reject(kind ErrorKind) {
	f.RecordsRejected++
	if f.RejectedByReason == nil {
		f.RejectedByReason = make(map[ErrorKind]int)
	}
	f.RejectedByReason[kind]++
}

// RunSummary is the result of one ingestion run. Every call returns its
// own summary; nothing is shared between runs.
type RunSummary struct {
	RunID            string            `json:"run_id"`
	DryRun           bool              `json:"dry_run"`
	StartedAt        time.Time         `json:"started_at"`
	FinishedAt       time.Time         `json:"finished_at"`
	FilesProcessed   int               `json:"files_processed"`
	FilesSucceeded   int               `json:"files_succeeded"`
	FilesFailed      int               `json:"files_failed"`
	RecordsProcessed int               `json:"records_processed"`
	RecordsInserted  int               `json:"records_inserted"`
	RecordsSkipped   int               `json:"records_skipped"`
	RecordsRejected  int               `json:"records_rejected"`
	RejectedByReason map[ErrorKind]int `json:"rejected_by_reason"`
	Files            []FileSummary     `json:"files"`
}

// NewRunSummary starts a summary at startedAt
func NewRunSummary(runID string, startedAt time.Time, dryRun bool) *RunSummary {
	return &RunSummary{
		RunID:            runID,
		DryRun:           dryRun,
		StartedAt:        startedAt,
		RejectedByReason: make(map[ErrorKind]int),
		Files:            []FileSummary{},
	}
}

// AddFile folds one file's outcome into the run totals
func (s *RunSummary) AddFile(f FileSummary) {
	s.FilesProcessed++
	if f.Succeeded {
		s.FilesSucceeded++
	} else {
		s.FilesFailed++
	}
	s.RecordsProcessed += f.RecordsProcessed
	s.RecordsInserted += f.RecordsInserted
	s.RecordsSkipped += f.RecordsSkipped
	s.RecordsRejected += f.RecordsRejected
	for kind, n := range f.RejectedByReason {
		s.RejectedByReason[kind] += n
	}
	s.Files = append(s.Files, f)
}

// Finish stamps the end of the run
func (s *RunSummary) Finish(at time.Time) {
	s.FinishedAt = at
}

// Duration is the wall time between start and finish
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// AggregationSummary is the result of one annual statistics recomputation
type AggregationSummary struct {
	StationYears int           `json:"station_years"`
	Stations     int           `json:"stations"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
}
