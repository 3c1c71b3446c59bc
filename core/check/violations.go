package check

import (
	"fmt"

	"github.com/kestrelrobotics/epcheck/core/dataset"
	"github.com/kestrelrobotics/epcheck/core/errors"
)

// Violation is a single violated invariant with enough structured context to
// be actionable without re-running the check. All violation types unwrap to
// errors.ErrInvariant.
type Violation interface {
	error
	// Kind is the stable violation category name used in reports.
	Kind() string
}

// MetadataMismatchError reports a dataset-level count or fps divergence.
type MetadataMismatchError struct {
	Field    string `json:"field"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

func (e *MetadataMismatchError) Kind() string { return "MetadataMismatch" }

func (e *MetadataMismatchError) Error() string {
	return fmt.Sprintf("metadata mismatch: %s: expected %v, got %v", e.Field, e.Expected, e.Actual)
}

func (e *MetadataMismatchError) Unwrap() error { return errors.ErrInvariant }

// EpisodeMismatchError reports a per-ordinal episode divergence under the
// identity-order relation.
type EpisodeMismatchError struct {
	Index    int    `json:"index"`
	Field    string `json:"field"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
}

func (e *EpisodeMismatchError) Kind() string { return "EpisodeMismatch" }

func (e *EpisodeMismatchError) Error() string {
	return fmt.Sprintf("episode %d mismatch: %s: expected %v, got %v", e.Index, e.Field, e.Expected, e.Actual)
}

func (e *EpisodeMismatchError) Unwrap() error { return errors.ErrInvariant }

// DistributionMismatchError reports a multiset-level divergence under the
// permutation relation (task distribution, length distribution, or an
// unchanged episode order when a shuffle was claimed).
type DistributionMismatchError struct {
	Which  string `json:"which"` // "tasks", "lengths", or "order"
	Detail string `json:"detail"`
}

func (e *DistributionMismatchError) Kind() string { return "DistributionMismatch" }

func (e *DistributionMismatchError) Error() string {
	return fmt.Sprintf("distribution mismatch (%s): %s", e.Which, e.Detail)
}

func (e *DistributionMismatchError) Unwrap() error { return errors.ErrInvariant }

// FrameMismatchError reports frame-level content divergence at a sampled
// global index under the identity-order relation.
type FrameMismatchError struct {
	FrameIndex int    `json:"frame_index"`
	Field      string `json:"field"`
	Detail     string `json:"detail"`
}

func (e *FrameMismatchError) Kind() string { return "FrameMismatch" }

func (e *FrameMismatchError) Error() string {
	return fmt.Sprintf("frame %d mismatch: %s: %s", e.FrameIndex, e.Field, e.Detail)
}

func (e *FrameMismatchError) Unwrap() error { return errors.ErrInvariant }

// NoMatchingEpisodeError reports a candidate episode whose action prefix has
// no within-tolerance counterpart anywhere in the reference dataset.
type NoMatchingEpisodeError struct {
	CandidateEpisode int `json:"candidate_episode"`
}

func (e *NoMatchingEpisodeError) Kind() string { return "NoMatchingEpisode" }

func (e *NoMatchingEpisodeError) Error() string {
	return fmt.Sprintf("candidate episode %d has no matching episode in the reference dataset", e.CandidateEpisode)
}

func (e *NoMatchingEpisodeError) Unwrap() error { return errors.ErrInvariant }

// InvalidVideoFrameError reports a malformed decoded video frame.
type InvalidVideoFrameError struct {
	VideoKey string `json:"video_key"`
	Reason   string `json:"reason"`
}

func (e *InvalidVideoFrameError) Kind() string { return "InvalidVideoFrame" }

func (e *InvalidVideoFrameError) Error() string {
	return fmt.Sprintf("invalid video frame for %s: %s", e.VideoKey, e.Reason)
}

func (e *InvalidVideoFrameError) Unwrap() error { return errors.ErrInvariant }

// AlignmentMismatchError reports an episode whose chunk/file addresses
// diverge between two of the data, video, and metadata streams.
type AlignmentMismatchError struct {
	EpisodeIndex int             `json:"episode_index"`
	StreamA      string          `json:"stream_a"`
	StreamB      string          `json:"stream_b"`
	RefA         dataset.FileRef `json:"ref_a"`
	RefB         dataset.FileRef `json:"ref_b"`
	Reason       string          `json:"reason,omitempty"`
}

func (e *AlignmentMismatchError) Kind() string { return "AlignmentMismatch" }

func (e *AlignmentMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("episode %d alignment: %s vs %s: %s", e.EpisodeIndex, e.StreamA, e.StreamB, e.Reason)
	}
	return fmt.Sprintf("episode %d alignment: %s %s != %s %s",
		e.EpisodeIndex, e.StreamA, e.RefA, e.StreamB, e.RefB)
}

func (e *AlignmentMismatchError) Unwrap() error { return errors.ErrInvariant }
