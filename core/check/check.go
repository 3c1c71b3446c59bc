// Package check implements the dataset consistency checker: it compares a
// reference dataset against a candidate produced by some transform and
// verifies the pair is related by a declared relation (identity-order or
// permutation) across metadata, tabular frame content, decoded video frames,
// and the cross-stream chunk/file alignment.
//
// The checker is read-only and stateless per invocation. Each stage runs all
// of its checks even after the first violation so a failed stage carries
// complete diagnostics, but a dataset access failure aborts the remaining
// stages: no partial verdicts are built on corrupt access.
package check

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/kestrelrobotics/epcheck/core/dataset"
	"github.com/kestrelrobotics/epcheck/core/errors"
	"github.com/kestrelrobotics/epcheck/core/fingerprint"
	"github.com/kestrelrobotics/epcheck/internal/logging"
)

// Relation declares how the candidate dataset is related to the reference.
type Relation string

const (
	// RelationIdentityOrder means episode order and indices are preserved.
	RelationIdentityOrder Relation = "identity-order"
	// RelationPermutation means episodes are reordered but content-preserved.
	RelationPermutation Relation = "permutation"
)

// ParseRelation parses a relation name.
func ParseRelation(s string) (Relation, error) {
	switch Relation(s) {
	case RelationIdentityOrder, RelationPermutation:
		return Relation(s), nil
	}
	return "", errors.NewParse("relation", "", fmt.Sprintf("%q is not identity-order or permutation", s))
}

// SampleStrategy selects how the frame-content stage samples positions. The
// two strategies mirror the two validation styles the operator workflows use;
// neither is universally right, so the choice is a configuration option with
// a relation-dependent default.
type SampleStrategy string

const (
	// SampleQuartiles samples global frame indices {0, N/4, N/2, 3N/4, N-1}
	// (identity-order default). Under permutation it selects episode
	// ordinals at the same quartile positions for the matching search.
	SampleQuartiles SampleStrategy = "quartiles"
	// SampleEpisodePrefix samples whole-episode action prefixes at ordinals
	// {first, middle, last} (permutation default). Under identity-order it
	// compares the sampled episodes' prefixes index-for-index.
	SampleEpisodePrefix SampleStrategy = "episode-prefix"
)

// ParseStrategy parses a sampling strategy name. The empty string selects
// the relation-dependent default.
func ParseStrategy(s string) (SampleStrategy, error) {
	switch SampleStrategy(s) {
	case "", SampleQuartiles, SampleEpisodePrefix:
		return SampleStrategy(s), nil
	}
	return "", errors.NewParse("sample strategy", "", fmt.Sprintf("%q is not quartiles or episode-prefix", s))
}

// Options configures a Checker. The zero value means "use defaults".
type Options struct {
	// Tolerance is the absolute elementwise tolerance for action comparison.
	Tolerance float64
	// AlignPrefix bounds the cross-stream alignment check to the first N
	// episodes.
	AlignPrefix int
	// PrefixFrames is the per-episode action prefix length used for
	// permutation matching.
	PrefixFrames int
	// Strategy overrides the relation-dependent sampling default.
	Strategy SampleStrategy
	// SkipVideo skips the video decode stage (reported as skipped), for
	// datasets opened without a decoder.
	SkipVideo bool
	// Index is an optional reference-side fingerprint index used as a fast
	// path by the permutation matcher. It must have been built with the
	// same PrefixFrames and Tolerance.
	Index *fingerprint.Index
	// ReferenceLabel and CandidateLabel name the datasets in reports.
	ReferenceLabel string
	CandidateLabel string
}

// Defaults mirror the operator workflows this checker consolidates.
const (
	DefaultTolerance    = 1e-5
	DefaultAlignPrefix  = 20
	DefaultPrefixFrames = 10
	orderCheckEpisodes  = 10
)

func (o Options) withDefaults() Options {
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.AlignPrefix <= 0 {
		o.AlignPrefix = DefaultAlignPrefix
	}
	if o.PrefixFrames <= 0 {
		o.PrefixFrames = DefaultPrefixFrames
	}
	if o.ReferenceLabel == "" {
		o.ReferenceLabel = "reference"
	}
	if o.CandidateLabel == "" {
		o.CandidateLabel = "candidate"
	}
	return o
}

// Checker runs consistency checks. A Checker carries no state between
// invocations and may be reused across dataset pairs.
type Checker struct {
	opts Options
}

// New creates a Checker with the given options.
func New(opts Options) *Checker {
	return &Checker{opts: opts.withDefaults()}
}

// Check runs all stages against the pair and returns the full report. The
// returned error is non-nil only for dataset access failures (which abort
// the remaining stages) or an invalid relation; invariant violations are
// reported through the Report, not the error.
func Check(ref, cand dataset.Dataset, rel Relation, opts Options) (*Report, error) {
	return New(opts).Check(ref, cand, rel)
}

// Check runs all stages in order. See the package-level Check.
func (c *Checker) Check(ref, cand dataset.Dataset, rel Relation) (*Report, error) {
	if _, err := ParseRelation(string(rel)); err != nil {
		return nil, err
	}

	report := newReport(c.opts.ReferenceLabel, c.opts.CandidateLabel, rel)

	stages := []func() (StageResult, error){
		func() (StageResult, error) { return c.Metadata(ref, cand) },
		func() (StageResult, error) { return c.Episodes(ref, cand, rel) },
		func() (StageResult, error) { return c.Frames(ref, cand, rel) },
		func() (StageResult, error) { return c.Video(cand) },
		func() (StageResult, error) { return c.Alignment(cand) },
		func() (StageResult, error) { return c.OrderChange(ref, cand, rel) },
	}

	for _, stage := range stages {
		result, err := stage()
		if err != nil {
			result.Status = StatusAborted
			report.Stages = append(report.Stages, result)
			report.Status = StatusAborted
			report.Error = err.Error()
			logging.CheckStage(result.Stage, StatusAborted, 0)
			return report, err
		}
		report.Stages = append(report.Stages, result)
		logging.CheckStage(result.Stage, result.Status, len(result.Violations))
	}

	report.finalize()
	return report, nil
}

// Metadata asserts the candidate's dataset-level counts and fps exactly
// equal the reference's.
func (c *Checker) Metadata(ref, cand dataset.Dataset) (StageResult, error) {
	result := StageResult{Stage: StageMetadata}
	rm, cm := ref.Meta(), cand.Meta()

	fields := []struct {
		name             string
		expected, actual any
	}{
		{"total_episodes", rm.TotalEpisodes, cm.TotalEpisodes},
		{"total_frames", rm.TotalFrames, cm.TotalFrames},
		{"total_tasks", rm.TotalTasks, cm.TotalTasks},
		{"fps", rm.FPS, cm.FPS},
	}
	for _, f := range fields {
		if f.expected != f.actual {
			result.Violations = append(result.Violations, &MetadataMismatchError{
				Field: f.name, Expected: f.expected, Actual: f.actual,
			})
		}
	}

	result.Status = statusFor(result.Violations)
	return result, nil
}

// Episodes compares per-episode tasks and lengths: ordered equality under
// identity-order, multiset equality under permutation.
func (c *Checker) Episodes(ref, cand dataset.Dataset, rel Relation) (StageResult, error) {
	result := StageResult{Stage: StageEpisodes}
	rm, cm := ref.Meta(), cand.Meta()

	switch rel {
	case RelationIdentityOrder:
		n := min(len(rm.Episodes), len(cm.Episodes))
		for i := 0; i < n; i++ {
			re, ce := &rm.Episodes[i], &cm.Episodes[i]
			if re.Length != ce.Length {
				result.Violations = append(result.Violations, &EpisodeMismatchError{
					Index: i, Field: "length", Expected: re.Length, Actual: ce.Length,
				})
			}
			if tasksKey(re.Tasks) != tasksKey(ce.Tasks) {
				result.Violations = append(result.Violations, &EpisodeMismatchError{
					Index: i, Field: "tasks", Expected: re.Tasks, Actual: ce.Tasks,
				})
			}
		}

	case RelationPermutation:
		refTasks := taskCounter(rm.Episodes)
		candTasks := taskCounter(cm.Episodes)
		if !counterEqual(refTasks, candTasks) {
			result.Violations = append(result.Violations, &DistributionMismatchError{
				Which:  "tasks",
				Detail: fmt.Sprintf("%d distinct task tuples in reference, %d in candidate, or counts differ", len(refTasks), len(candTasks)),
			})
		}

		refLens := sortedLengths(rm.Episodes)
		candLens := sortedLengths(cm.Episodes)
		if !intSliceEqual(refLens, candLens) {
			result.Violations = append(result.Violations, &DistributionMismatchError{
				Which:  "lengths",
				Detail: "sorted episode length sequences differ",
			})
		}
	}

	result.Status = statusFor(result.Violations)
	return result, nil
}

// Frames verifies action content and episode-index labels at sampled
// positions. Under identity-order the same global indices are compared
// directly; under permutation each sampled candidate episode must have a
// within-tolerance counterpart somewhere in the reference.
func (c *Checker) Frames(ref, cand dataset.Dataset, rel Relation) (StageResult, error) {
	if rel == RelationPermutation {
		return c.matchFrames(ref, cand)
	}
	return c.compareFrames(ref, cand)
}

// compareFrames is the identity-order frame content check.
func (c *Checker) compareFrames(ref, cand dataset.Dataset) (StageResult, error) {
	result := StageResult{Stage: StageFrames}
	total := min(ref.Meta().TotalFrames, cand.Meta().TotalFrames)
	if total == 0 {
		result.Status = StatusSkipped
		result.Note = "no frames to compare"
		return result, nil
	}

	var indices []int
	if c.opts.Strategy == SampleEpisodePrefix {
		indices = episodePrefixIndices(ref.Meta(), c.opts.PrefixFrames)
	} else {
		indices = quartileIndices(total)
	}

	for _, i := range indices {
		rf, err := ref.Frame(i)
		if err != nil {
			return result, errors.NewAccess(c.opts.ReferenceLabel, "frame", i, err)
		}
		cf, err := cand.Frame(i)
		if err != nil {
			return result, errors.NewAccess(c.opts.CandidateLabel, "frame", i, err)
		}

		if len(rf.Action) != len(cf.Action) {
			result.Violations = append(result.Violations, &FrameMismatchError{
				FrameIndex: i, Field: "action",
				Detail: fmt.Sprintf("length %d vs %d", len(rf.Action), len(cf.Action)),
			})
		} else if d, ok := maxAbsDiff(rf.Action, cf.Action, c.opts.Tolerance); !ok {
			result.Violations = append(result.Violations, &FrameMismatchError{
				FrameIndex: i, Field: "action",
				Detail: fmt.Sprintf("max abs diff %.3g exceeds tolerance %.3g", d, c.opts.Tolerance),
			})
		}
		if rf.EpisodeIndex != cf.EpisodeIndex {
			result.Violations = append(result.Violations, &FrameMismatchError{
				FrameIndex: i, Field: "episode_index",
				Detail: fmt.Sprintf("%d vs %d", rf.EpisodeIndex, cf.EpisodeIndex),
			})
		}
	}

	result.Status = statusFor(result.Violations)
	return result, nil
}

// matchFrames is the permutation-mode frame content check: for each sampled
// candidate episode, an episode with the same action prefix must exist in
// the reference. The fingerprint index, when provided, short-circuits the
// O(E²) scan; a miss still falls back to the full tolerance scan.
func (c *Checker) matchFrames(ref, cand dataset.Dataset) (StageResult, error) {
	result := StageResult{Stage: StageFrames}
	episodes := cand.Meta().TotalEpisodes
	if episodes == 0 {
		result.Status = StatusSkipped
		result.Note = "no episodes to match"
		return result, nil
	}

	var ordinals []int
	if c.opts.Strategy == SampleQuartiles {
		ordinals = quartileIndices(episodes)
	} else {
		ordinals = dedupSorted([]int{0, episodes / 2, episodes - 1})
	}

	for _, ep := range ordinals {
		prefix, err := fingerprint.PrefixActions(cand, ep, c.opts.PrefixFrames)
		if err != nil {
			return result, errors.NewAccess(c.opts.CandidateLabel, "episode prefix", ep, err)
		}

		matched, err := c.findMatch(ref, prefix)
		if err != nil {
			return result, err
		}
		if !matched {
			result.Violations = append(result.Violations, &NoMatchingEpisodeError{CandidateEpisode: ep})
		}
	}

	result.Status = statusFor(result.Violations)
	return result, nil
}

func (c *Checker) findMatch(ref dataset.Dataset, prefix [][]float32) (bool, error) {
	if c.opts.Index != nil {
		fp := fingerprint.Fingerprint(prefix, c.opts.Tolerance)
		for _, refEp := range c.opts.Index.Lookup(fp) {
			ok, err := c.prefixMatches(ref, refEp, prefix)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		// Quantization-boundary values can miss the index; fall through to
		// the scan.
	}

	for refEp := 0; refEp < ref.Meta().TotalEpisodes; refEp++ {
		ok, err := c.prefixMatches(ref, refEp, prefix)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (c *Checker) prefixMatches(ref dataset.Dataset, refEp int, prefix [][]float32) (bool, error) {
	rec := &ref.Meta().Episodes[refEp]
	if got := min(c.opts.PrefixFrames, rec.Length); got != len(prefix) {
		return false, nil
	}
	for offset, vec := range prefix {
		rf, err := ref.Frame(rec.FromIndex + offset)
		if err != nil {
			return false, errors.NewAccess(c.opts.ReferenceLabel, "frame", rec.FromIndex+offset, err)
		}
		if len(rf.Action) != len(vec) {
			return false, nil
		}
		if _, ok := maxAbsDiff(rf.Action, vec, c.opts.Tolerance); !ok {
			return false, nil
		}
	}
	return true, nil
}

// Video decodes a representative frame (index 0) of the candidate for each
// video key and validates shape and pixel range.
func (c *Checker) Video(cand dataset.Dataset) (StageResult, error) {
	result := StageResult{Stage: StageVideo}
	keys := cand.Meta().VideoKeys
	if c.opts.SkipVideo {
		result.Status = StatusSkipped
		result.Note = "video decode check disabled"
		return result, nil
	}
	if len(keys) == 0 || cand.Meta().TotalFrames == 0 {
		result.Status = StatusSkipped
		result.Note = "no video streams"
		return result, nil
	}

	frame, err := cand.Frame(0)
	if err != nil {
		return result, errors.NewAccess(c.opts.CandidateLabel, "frame", 0, err)
	}

	for _, key := range keys {
		img := frame.Images[key]
		if img == nil {
			result.Violations = append(result.Violations, &InvalidVideoFrameError{
				VideoKey: key, Reason: "frame 0 has no decoded image",
			})
			continue
		}
		if len(img.Shape) != 3 {
			result.Violations = append(result.Violations, &InvalidVideoFrameError{
				VideoKey: key, Reason: fmt.Sprintf("expected 3 dimensions, got %d", len(img.Shape)),
			})
			continue
		}
		if img.Shape[0] != 3 {
			result.Violations = append(result.Violations, &InvalidVideoFrameError{
				VideoKey: key, Reason: fmt.Sprintf("expected 3 channels, got %d", img.Shape[0]),
			})
			continue
		}
		if i, ok := firstNaN(img.Data); ok {
			result.Violations = append(result.Violations, &InvalidVideoFrameError{
				VideoKey: key, Reason: fmt.Sprintf("NaN pixel value at element %d", i),
			})
			continue
		}
		if lo, hi := valueRange(img.Data); lo < 0 || hi > 1 {
			result.Violations = append(result.Violations, &InvalidVideoFrameError{
				VideoKey: key, Reason: fmt.Sprintf("pixel values in [%.4g,%.4g], expected [0,1]", lo, hi),
			})
		}
	}

	result.Status = statusFor(result.Violations)
	return result, nil
}

// Alignment verifies that for a bounded prefix of candidate episodes, the
// data, first-video, and episode-metadata chunk/file pairs coincide.
func (c *Checker) Alignment(cand dataset.Dataset) (StageResult, error) {
	result := StageResult{Stage: StageAlignment}
	m := cand.Meta()

	streams := []string{dataset.StreamMetaEpisodes}
	if len(m.VideoKeys) > 0 {
		streams = []string{dataset.StreamVideo(m.VideoKeys[0]), dataset.StreamMetaEpisodes}
	}

	n := min(c.opts.AlignPrefix, m.TotalEpisodes)
	for ep := 0; ep < n; ep++ {
		rec := &m.Episodes[ep]
		dataRef, ok := rec.Stream(dataset.StreamData)
		if !ok {
			result.Violations = append(result.Violations, &AlignmentMismatchError{
				EpisodeIndex: ep, StreamA: dataset.StreamData, StreamB: dataset.StreamData,
				Reason: "data stream address missing",
			})
			continue
		}
		for _, name := range streams {
			other, ok := rec.Stream(name)
			if !ok {
				result.Violations = append(result.Violations, &AlignmentMismatchError{
					EpisodeIndex: ep, StreamA: dataset.StreamData, StreamB: name,
					RefA: dataRef, Reason: "stream address missing",
				})
				continue
			}
			if other != dataRef {
				result.Violations = append(result.Violations, &AlignmentMismatchError{
					EpisodeIndex: ep, StreamA: dataset.StreamData, StreamB: name,
					RefA: dataRef, RefB: other,
				})
			}
		}
	}

	result.Status = statusFor(result.Violations)
	return result, nil
}

// OrderChange is the permutation-only negative check: a transform that
// claims to shuffle must actually change the first-N episode task order,
// unless the sampled episodes all share one task value, in which case the
// check is inconclusive rather than failed.
func (c *Checker) OrderChange(ref, cand dataset.Dataset, rel Relation) (StageResult, error) {
	result := StageResult{Stage: StageOrder}
	if rel != RelationPermutation {
		result.Status = StatusSkipped
		result.Note = "only applicable to the permutation relation"
		return result, nil
	}

	rm, cm := ref.Meta(), cand.Meta()
	n := min(orderCheckEpisodes, min(rm.TotalEpisodes, cm.TotalEpisodes))
	if n < 2 {
		result.Status = StatusInconclusive
		result.Note = "too few episodes to verify order change"
		return result, nil
	}

	refSeq := make([]string, n)
	candSeq := make([]string, n)
	distinct := map[string]bool{}
	for i := 0; i < n; i++ {
		refSeq[i] = tasksKey(rm.Episodes[i].Tasks)
		candSeq[i] = tasksKey(cm.Episodes[i].Tasks)
		distinct[refSeq[i]] = true
	}

	if len(distinct) < 2 {
		result.Status = StatusInconclusive
		result.Note = "all sampled episodes share one task value; order change cannot be observed"
		return result, nil
	}

	same := true
	for i := range refSeq {
		if refSeq[i] != candSeq[i] {
			same = false
			break
		}
	}
	if same {
		result.Violations = append(result.Violations, &DistributionMismatchError{
			Which:  "order",
			Detail: fmt.Sprintf("first %d episode task sequences are identical; shuffle appears to be a no-op", n),
		})
	}

	result.Status = statusFor(result.Violations)
	return result, nil
}

// Helpers

func statusFor(violations []Violation) string {
	if len(violations) > 0 {
		return StatusFail
	}
	return StatusPass
}

// quartileIndices returns {0, N/4, N/2, 3N/4, N-1}, deduplicated and sorted.
func quartileIndices(n int) []int {
	return dedupSorted([]int{0, n / 4, n / 2, 3 * n / 4, n - 1})
}

// episodePrefixIndices returns the global indices of the first prefixFrames
// frames of the first, middle, and last episodes.
func episodePrefixIndices(m *dataset.Meta, prefixFrames int) []int {
	if m.TotalEpisodes == 0 {
		return nil
	}
	var out []int
	for _, ep := range dedupSorted([]int{0, m.TotalEpisodes / 2, m.TotalEpisodes - 1}) {
		rec := &m.Episodes[ep]
		end := min(rec.FromIndex+prefixFrames, rec.ToIndex)
		for i := rec.FromIndex; i < end; i++ {
			out = append(out, i)
		}
	}
	return dedupSorted(out)
}

func dedupSorted(indices []int) []int {
	sort.Ints(indices)
	out := indices[:0]
	for i, v := range indices {
		if i == 0 || v != indices[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// maxAbsDiff returns the largest elementwise absolute difference and whether
// all elements are within tol. A NaN in either vector is never within
// tolerance. Slices must be the same length.
func maxAbsDiff(a, b []float32, tol float64) (float64, bool) {
	var worst float64
	for i := range a {
		d := math.Abs(float64(a[i]) - float64(b[i]))
		if math.IsNaN(d) {
			return math.NaN(), false
		}
		if d > worst {
			worst = d
		}
	}
	return worst, worst <= tol
}

// firstNaN returns the index of the first NaN element, if any.
func firstNaN(data []float32) (int, bool) {
	for i, v := range data {
		if math.IsNaN(float64(v)) {
			return i, true
		}
	}
	return 0, false
}

func valueRange(data []float32) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	lo, hi := float64(data[0]), float64(data[0])
	for _, v := range data[1:] {
		f := float64(v)
		if f < lo {
			lo = f
		}
		if f > hi {
			hi = f
		}
	}
	return lo, hi
}

// tasksKey canonicalizes a task sequence for exact comparison and counting.
func tasksKey(tasks []string) string {
	return strings.Join(tasks, "\x1f")
}

func taskCounter(episodes []dataset.EpisodeRecord) map[string]int {
	counts := make(map[string]int)
	for i := range episodes {
		counts[tasksKey(episodes[i].Tasks)]++
	}
	return counts
}

func counterEqual(a, b map[string]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func intSliceEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sortedLengths(episodes []dataset.EpisodeRecord) []int {
	out := make([]int, len(episodes))
	for i := range episodes {
		out[i] = episodes[i].Length
	}
	sort.Ints(out)
	return out
}
