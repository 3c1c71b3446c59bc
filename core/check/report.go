package check

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Version is the report format version.
const Version = "1.0.0"

// Status values for stages and reports.
const (
	StatusPass         = "pass"
	StatusFail         = "fail"
	StatusSkipped      = "skipped"
	StatusInconclusive = "inconclusive"
	StatusAborted      = "aborted"
)

// Stage names, in execution order.
const (
	StageMetadata  = "metadata"
	StageEpisodes  = "episodes"
	StageFrames    = "frames"
	StageVideo     = "video"
	StageAlignment = "alignment"
	StageOrder     = "order"
)

// violationRecord is the serialized form of one violation.
type violationRecord struct {
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	Detail  Violation `json:"detail,omitempty"`
}

// StageResult is the outcome of one check stage. All checks within a stage
// are evaluated even after the first violation, so a failed stage carries
// the complete violation list for that category.
type StageResult struct {
	Stage      string      `json:"stage"`
	Status     string      `json:"status"`
	Violations []Violation `json:"-"`
	Note       string      `json:"note,omitempty"`
}

// stageResultJSON mirrors StageResult with serializable violations.
type stageResultJSON struct {
	Stage      string            `json:"stage"`
	Status     string            `json:"status"`
	Violations []violationRecord `json:"violations,omitempty"`
	Note       string            `json:"note,omitempty"`
}

// MarshalJSON serializes the stage result with each violation's kind,
// rendered message, and structured payload.
func (s StageResult) MarshalJSON() ([]byte, error) {
	out := stageResultJSON{Stage: s.Stage, Status: s.Status, Note: s.Note}
	for _, v := range s.Violations {
		out.Violations = append(out.Violations, violationRecord{
			Kind:    v.Kind(),
			Message: v.Error(),
			Detail:  v,
		})
	}
	return json.Marshal(out)
}

// Failed reports whether the stage found any violation.
func (s StageResult) Failed() bool { return s.Status == StatusFail }

// Report is the output of one checker invocation.
type Report struct {
	ReportVersion string        `json:"report_version"`
	ID            string        `json:"id"`
	CreatedAt     string        `json:"created_at"`
	Reference     string        `json:"reference"`
	Candidate     string        `json:"candidate"`
	Relation      Relation      `json:"relation"`
	Stages        []StageResult `json:"stages"`
	Status        string        `json:"status"`
	// Error holds the rendered dataset access error when the run aborted.
	Error string `json:"error,omitempty"`
}

func newReport(reference, candidate string, rel Relation) *Report {
	return &Report{
		ReportVersion: Version,
		ID:            uuid.NewString(),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Reference:     reference,
		Candidate:     candidate,
		Relation:      rel,
	}
}

// finalize computes the overall status from the stage results. Inconclusive
// and skipped stages do not fail the report.
func (r *Report) finalize() {
	r.Status = StatusPass
	for _, s := range r.Stages {
		if s.Status == StatusFail {
			r.Status = StatusFail
			return
		}
	}
}

// Failed reports whether any stage found a violation or the run aborted.
func (r *Report) Failed() bool {
	return r.Status != StatusPass
}

// ToJSON serializes the report to indented JSON.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Violations flattens all stage violations, preserving stage order.
func (r *Report) Violations() []Violation {
	var out []Violation
	for _, s := range r.Stages {
		out = append(out, s.Violations...)
	}
	return out
}
