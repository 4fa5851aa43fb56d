// Package report accumulates per-item outcomes of a pipeline run.
package report

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Stage identifies the pipeline step an outcome belongs to.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageFilter    Stage = "filter"
	StageIndex     Stage = "index"
	StageComposite Stage = "composite"
	StageClean     Stage = "clean"
)

// Status is the outcome of a single item.
type Status string

const (
	StatusOK      Status = "ok"
	StatusPartial Status = "partial"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of one item (a product, a tile or a group).
type Result struct {
	Stage  Stage  `json:"stage"`
	Key    string `json:"key"`
	Status Status `json:"status"`
	Reason string `json:"reason,omitempty"`
	// Detail carries a stage-specific value, e.g. the output path of a group.
	Detail string `json:"detail,omitempty"`
}

// OK builds a successful result.
func OK(stage Stage, key, detail string) Result {
	return Result{Stage: stage, Key: key, Status: StatusOK, Detail: detail}
}

// Partial builds a result for an item that produced something but also
// failed in part. detail describes what succeeded, err what did not.
func Partial(stage Stage, key, detail string, err error) Result {
	res := Skipped(stage, key, err)
	res.Status = StatusPartial
	res.Detail = detail
	return res
}

// Skipped builds a skipped result from the error that caused it.
func Skipped(stage Stage, key string, err error) Result {
	reason := "unknown"
	if err != nil {
		reason = err.Error()
	}
	return Result{Stage: stage, Key: key, Status: StatusSkipped, Reason: reason}
}

// Report is the run-level record of what succeeded and what was skipped.
// It is safe for concurrent reads while a run appends to it.
type Report struct {
	mu       sync.RWMutex
	started  time.Time
	finished time.Time
	results  []Result
	outputs  []string
	err      error
}

// New creates an empty report stamped with the start time.
func New(started time.Time) *Report {
	return &Report{started: started}
}

// Add appends results to the report.
func (r *Report) Add(results ...Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, results...)
}

// SetOutputs records the final output files present after cleanup.
func (r *Report) SetOutputs(outputs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = append([]string(nil), outputs...)
	sort.Strings(r.outputs)
}

// Finish stamps the end time and the run-aborting error, if any.
func (r *Report) Finish(finished time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = finished
	r.err = err
}

// Results returns a copy of all results.
func (r *Report) Results() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Result(nil), r.results...)
}

// ByStage returns the results recorded for one stage.
func (r *Report) ByStage(stage Stage) []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Result
	for _, res := range r.results {
		if res.Stage == stage {
			out = append(out, res)
		}
	}
	return out
}

// Skipped returns every skipped result.
func (r *Report) Skipped() []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Result
	for _, res := range r.results {
		if res.Status == StatusSkipped {
			out = append(out, res)
		}
	}
	return out
}

// Find returns the result for a stage and key.
func (r *Report) Find(stage Stage, key string) (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.results {
		if res.Stage == stage && res.Key == key {
			return res, true
		}
	}
	return Result{}, false
}

// Outputs returns the final output files.
func (r *Report) Outputs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.outputs...)
}

// Err returns the error that aborted the run, or nil.
func (r *Report) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Summary is the JSON view of a report.
type Summary struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished,omitempty"`
	Error    string    `json:"error,omitempty"`
	Results  []Result  `json:"results"`
	Outputs  []string  `json:"outputs"`
	Counts   Counts    `json:"counts"`
}

// Counts tallies results per status.
type Counts struct {
	OK      int `json:"ok"`
	Partial int `json:"partial"`
	Skipped int `json:"skipped"`
}

// Summary returns a snapshot suitable for JSON encoding.
func (r *Report) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Summary{
		Started:  r.started,
		Finished: r.finished,
		Results:  append([]Result{}, r.results...),
		Outputs:  append([]string{}, r.outputs...),
	}
	if r.err != nil {
		s.Error = r.err.Error()
	}
	for _, res := range r.results {
		switch res.Status {
		case StatusOK:
			s.Counts.OK++
		case StatusPartial:
			s.Counts.Partial++
		case StatusSkipped:
			s.Counts.Skipped++
		}
	}
	return s
}

// String renders a one-line summary for logs.
func (r *Report) String() string {
	s := r.Summary()
	return fmt.Sprintf("%d ok, %d partial, %d skipped, %d outputs",
		s.Counts.OK, s.Counts.Partial, s.Counts.Skipped, len(s.Outputs))
}
