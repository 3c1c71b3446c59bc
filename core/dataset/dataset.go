// Package dataset defines the data model for chunked episodic datasets with
// paired tabular and video storage, and the handle interfaces consumed by the
// consistency checker. Providers (on-disk, streaming, in-memory) implement
// Dataset; the checker never mutates a dataset through these interfaces.
package dataset

import (
	"fmt"
	"io"
	"sort"

	"github.com/kestrelrobotics/epcheck/core/errors"
)

// Stream names for the per-episode chunk/file addressing scheme. Every
// episode carries one FileRef per stream; within a consistent dataset all
// refs for one episode are equal.
const (
	StreamData         = "data"
	StreamMetaEpisodes = "meta/episodes"
)

// StreamVideo returns the stream name for a video key.
func StreamVideo(key string) string {
	return "videos/" + key
}

// FileRef addresses the physical file an episode's rows are grouped into.
type FileRef struct {
	Chunk int `json:"chunk_index"`
	File  int `json:"file_index"`
}

func (r FileRef) String() string {
	return fmt.Sprintf("(%d,%d)", r.Chunk, r.File)
}

// EpisodeRecord is the per-episode metadata row. FromIndex/ToIndex is the
// half-open global frame range; Streams maps stream names to chunk/file
// addresses.
type EpisodeRecord struct {
	Length    int                `json:"length"`
	Tasks     []string           `json:"tasks"`
	FromIndex int                `json:"dataset_from_index"`
	ToIndex   int                `json:"dataset_to_index"`
	Streams   map[string]FileRef `json:"streams"`
}

// Stream returns the FileRef for the named stream and whether it is present.
func (e *EpisodeRecord) Stream(name string) (FileRef, bool) {
	ref, ok := e.Streams[name]
	return ref, ok
}

// Meta is dataset-level metadata. Episodes is ordered by episode ordinal in
// this dataset's current order.
type Meta struct {
	TotalEpisodes int             `json:"total_episodes"`
	TotalFrames   int             `json:"total_frames"`
	TotalTasks    int             `json:"total_tasks"`
	FPS           float64         `json:"fps"`
	VideoKeys     []string        `json:"video_keys"`
	Episodes      []EpisodeRecord `json:"episodes"`
}

// EpisodeAt finds the episode containing the global frame index, by binary
// search over the episode frame ranges. Returns the episode ordinal.
func (m *Meta) EpisodeAt(frameIndex int) (int, error) {
	if frameIndex < 0 || frameIndex >= m.TotalFrames {
		return 0, errors.NewNotFound("frame", fmt.Sprintf("%d", frameIndex))
	}
	i := sort.Search(len(m.Episodes), func(i int) bool {
		return m.Episodes[i].ToIndex > frameIndex
	})
	if i >= len(m.Episodes) || m.Episodes[i].FromIndex > frameIndex {
		return 0, errors.NewParse("episodes", "", fmt.Sprintf("frame %d falls outside all episode ranges", frameIndex))
	}
	return i, nil
}

// Image is a decoded video frame: a channel-first float32 tensor. Shape is
// kept as a slice rather than a fixed [3]int so that malformed decodes can be
// represented and flagged by the checker.
type Image struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"-"`
}

// Len returns the expected element count for the shape.
func (im *Image) Len() int {
	n := 1
	for _, d := range im.Shape {
		n *= d
	}
	return n
}

// Frame is one dataset row. Action and EpisodeIndex are the fixed required
// fields; Images holds one decoded tensor per video key when a decoder is
// available; Extra carries forward-compatible fields the checker ignores.
type Frame struct {
	Action       []float32
	EpisodeIndex int64
	Images       map[string]*Image
	Extra        map[string]any
}

// Dataset is the read-only handle the checker consumes. Frame is positional
// (random-access) frame retrieval by global index.
type Dataset interface {
	Meta() *Meta
	Frame(i int) (*Frame, error)
	Close() error
}

// Walker iterates frames sequentially. Next returns io.EOF after the last
// frame. Used by the full-sweep integrity pass.
type Walker interface {
	Next() (*Frame, error)
}

// Walkable is implemented by providers that support a lazy sequential
// iteration mode cheaper than repeated positional access.
type Walkable interface {
	Walk() Walker
}

// indexWalker adapts positional access into a Walker for providers without a
// native sequential mode.
type indexWalker struct {
	ds   Dataset
	next int
}

func (w *indexWalker) Next() (*Frame, error) {
	if w.next >= w.ds.Meta().TotalFrames {
		return nil, io.EOF
	}
	f, err := w.ds.Frame(w.next)
	if err != nil {
		return nil, err
	}
	w.next++
	return f, nil
}

// NewWalker returns the dataset's native Walker when it is Walkable, or a
// positional-access fallback otherwise.
func NewWalker(ds Dataset) Walker {
	if w, ok := ds.(Walkable); ok {
		return w.Walk()
	}
	return &indexWalker{ds: ds}
}
