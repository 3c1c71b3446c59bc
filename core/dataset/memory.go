package dataset

import (
	"fmt"
	"io"

	"github.com/kestrelrobotics/epcheck/core/errors"
)

// MemDataset is a fully-materialized in-memory dataset. It is the reference
// Dataset implementation, used for synthetic fixtures in tests and as the
// target shape providers materialize into.
type MemDataset struct {
	meta   *Meta
	frames []*Frame
}

// NewMem builds a MemDataset from metadata and frames. The frame slice must
// match meta.TotalFrames; this is checked on first access, not here, so that
// deliberately inconsistent fixtures can be constructed.
func NewMem(meta *Meta, frames []*Frame) *MemDataset {
	return &MemDataset{meta: meta, frames: frames}
}

// Meta returns the dataset metadata.
func (d *MemDataset) Meta() *Meta { return d.meta }

// Frame returns the frame at global index i.
func (d *MemDataset) Frame(i int) (*Frame, error) {
	if i < 0 || i >= len(d.frames) {
		return nil, errors.NewAccess("memory", "frame", i, fmt.Errorf("index out of range [0,%d)", len(d.frames)))
	}
	return d.frames[i], nil
}

// Close is a no-op for in-memory datasets.
func (d *MemDataset) Close() error { return nil }

// Walk returns a sequential walker over the in-memory frames.
func (d *MemDataset) Walk() Walker {
	return &memWalker{d: d}
}

type memWalker struct {
	d    *MemDataset
	next int
}

func (w *memWalker) Next() (*Frame, error) {
	if w.next >= len(w.d.frames) {
		return nil, io.EOF
	}
	f := w.d.frames[w.next]
	w.next++
	return f, nil
}

// SyntheticSpec configures Synthetic dataset generation.
type SyntheticSpec struct {
	Episodes        int
	FramesPer       int
	ActionDim       int
	VideoKeys       []string
	EpisodesPerFile int                 // episodes grouped into one chunk/file pair; default 2
	TaskFor         func(ep int) string // task label per episode; default single task
	ImageShape      []int               // decoded image shape; default [3,4,4]
}

// Synthetic builds a deterministic, internally consistent MemDataset. Action
// values encode (episode, frame, dim) so that any reordering or corruption is
// detectable by content comparison. All three stream refs for each episode
// point at the same chunk/file pair.
func Synthetic(spec SyntheticSpec) *MemDataset {
	if spec.EpisodesPerFile <= 0 {
		spec.EpisodesPerFile = 2
	}
	if spec.TaskFor == nil {
		spec.TaskFor = func(int) string { return "pick up the object" }
	}
	if spec.ImageShape == nil {
		spec.ImageShape = []int{3, 4, 4}
	}

	meta := &Meta{
		TotalEpisodes: spec.Episodes,
		TotalFrames:   spec.Episodes * spec.FramesPer,
		FPS:           30,
		VideoKeys:     append([]string(nil), spec.VideoKeys...),
	}

	tasks := map[string]bool{}
	frames := make([]*Frame, 0, meta.TotalFrames)
	for ep := 0; ep < spec.Episodes; ep++ {
		task := spec.TaskFor(ep)
		tasks[task] = true

		ref := FileRef{Chunk: 0, File: ep / spec.EpisodesPerFile}
		streams := map[string]FileRef{
			StreamData:         ref,
			StreamMetaEpisodes: ref,
		}
		for _, key := range spec.VideoKeys {
			streams[StreamVideo(key)] = ref
		}

		from := ep * spec.FramesPer
		meta.Episodes = append(meta.Episodes, EpisodeRecord{
			Length:    spec.FramesPer,
			Tasks:     []string{task},
			FromIndex: from,
			ToIndex:   from + spec.FramesPer,
			Streams:   streams,
		})

		for fr := 0; fr < spec.FramesPer; fr++ {
			frames = append(frames, &Frame{
				Action:       SyntheticAction(ep, fr, spec.ActionDim),
				EpisodeIndex: int64(ep),
				Images:       syntheticImages(spec.VideoKeys, spec.ImageShape),
			})
		}
	}
	meta.TotalTasks = len(tasks)

	return NewMem(meta, frames)
}

// SyntheticAction is the deterministic action vector used by Synthetic:
// value = episode*1000 + frame + dim/1000.
func SyntheticAction(ep, frame, dim int) []float32 {
	v := make([]float32, dim)
	for d := range v {
		v[d] = float32(ep)*1000 + float32(frame) + float32(d)/1000
	}
	return v
}

func syntheticImages(keys []string, shape []int) map[string]*Image {
	if len(keys) == 0 {
		return nil
	}
	images := make(map[string]*Image, len(keys))
	for _, key := range keys {
		img := &Image{Shape: append([]int(nil), shape...)}
		img.Data = make([]float32, img.Len())
		for i := range img.Data {
			img.Data[i] = float32(i%256) / 255
		}
		images[key] = img
	}
	return images
}

// Permute returns a new MemDataset with episodes reordered by perm, where
// perm[newOrdinal] = oldOrdinal. Frame episode_index labels and the global
// frame ranges are rewritten to the new order, matching what an
// episode-shuffling transform produces. Stream refs are regrouped so the
// result stays internally aligned.
func (d *MemDataset) Permute(perm []int) (*MemDataset, error) {
	m := d.meta
	if len(perm) != m.TotalEpisodes {
		return nil, errors.NewParse("permutation", "", fmt.Sprintf("got %d entries for %d episodes", len(perm), m.TotalEpisodes))
	}

	out := &Meta{
		TotalEpisodes: m.TotalEpisodes,
		TotalFrames:   m.TotalFrames,
		TotalTasks:    m.TotalTasks,
		FPS:           m.FPS,
		VideoKeys:     append([]string(nil), m.VideoKeys...),
	}

	frames := make([]*Frame, 0, m.TotalFrames)
	next := 0
	for newIdx, oldIdx := range perm {
		if oldIdx < 0 || oldIdx >= m.TotalEpisodes {
			return nil, errors.NewParse("permutation", "", fmt.Sprintf("ordinal %d out of range", oldIdx))
		}
		old := m.Episodes[oldIdx]

		rec := EpisodeRecord{
			Length:    old.Length,
			Tasks:     append([]string(nil), old.Tasks...),
			FromIndex: next,
			ToIndex:   next + old.Length,
			Streams:   make(map[string]FileRef, len(old.Streams)),
		}
		// Regroup into fresh chunk/file pairs in the new order so the
		// alignment invariant holds after the permutation.
		ref := FileRef{Chunk: 0, File: newIdx / 2}
		for name := range old.Streams {
			rec.Streams[name] = ref
		}
		out.Episodes = append(out.Episodes, rec)

		for i := old.FromIndex; i < old.ToIndex; i++ {
			src := d.frames[i]
			frames = append(frames, &Frame{
				Action:       src.Action,
				EpisodeIndex: int64(newIdx),
				Images:       src.Images,
				Extra:        src.Extra,
			})
		}
		next += old.Length
	}

	return NewMem(out, frames), nil
}
