package lerobot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kestrelrobotics/epcheck/core/dataset"
	"github.com/kestrelrobotics/epcheck/core/errors"
	"github.com/kestrelrobotics/epcheck/internal/logging"
)

// Dir is a read-only dataset handle over an on-disk LeRobot-style layout.
// It caches the most recently read data file, which makes both repeated
// positional access within one episode and the sequential walk cheap.
type Dir struct {
	root    string
	meta    *dataset.Meta
	decoder DecodeFunc

	// last-file row cache
	cachedPath string
	cachedRows map[int]*frameRow
}

// Option configures Open.
type Option func(*Dir)

// WithDecoder injects the video frame decoder. Without one, frames carry no
// decoded images and the video stage of a check should be skipped.
func WithDecoder(fn DecodeFunc) Option {
	return func(d *Dir) { d.decoder = fn }
}

// Open loads the dataset metadata under root and returns a handle. Frame
// data is read lazily.
func Open(root string, opts ...Option) (*Dir, error) {
	info, err := LoadInfo(root)
	if err != nil {
		return nil, err
	}
	if isParquetOnly(info.DataFiles) {
		return nil, errors.NewUnsupported("data format", "parquet data files require an external dataset provider")
	}

	episodes, err := LoadEpisodes(root)
	if err != nil {
		return nil, err
	}
	if len(episodes) != info.TotalEpisodes {
		return nil, errors.NewParse("episodes.jsonl", root,
			fmt.Sprintf("%d episode records but info.json declares %d", len(episodes), info.TotalEpisodes))
	}

	d := &Dir{
		root: root,
		meta: &dataset.Meta{
			TotalEpisodes: info.TotalEpisodes,
			TotalFrames:   info.TotalFrames,
			TotalTasks:    info.TotalTasks,
			FPS:           info.FPS,
			VideoKeys:     info.VideoKeys,
			Episodes:      episodes,
		},
	}
	for _, opt := range opts {
		opt(d)
	}

	logging.DatasetOpen(root, d.meta.TotalEpisodes, d.meta.TotalFrames)
	return d, nil
}

// Root returns the dataset root path.
func (d *Dir) Root() string { return d.root }

// Meta returns the dataset metadata.
func (d *Dir) Meta() *dataset.Meta { return d.meta }

// Close releases the row cache.
func (d *Dir) Close() error {
	d.cachedPath = ""
	d.cachedRows = nil
	return nil
}

// frameRow is one line of a chunked JSONL data file.
type frameRow struct {
	Index        int       `json:"index"`
	EpisodeIndex int64     `json:"episode_index"`
	Action       []float32 `json:"action"`
}

// Frame returns the frame at global index i, decoding video images when a
// decoder is configured.
func (d *Dir) Frame(i int) (*dataset.Frame, error) {
	ep, err := d.meta.EpisodeAt(i)
	if err != nil {
		return nil, errors.NewAccess(d.root, "frame", i, err)
	}
	ref, ok := d.meta.Episodes[ep].Stream(dataset.StreamData)
	if !ok {
		return nil, errors.NewAccess(d.root, "frame", i, fmt.Errorf("episode %d has no data stream address", ep))
	}

	rows, err := d.loadDataFile(dataFilePath(d.root, ref.Chunk, ref.File))
	if err != nil {
		return nil, errors.NewAccess(d.root, "frame", i, err)
	}
	row, ok := rows[i]
	if !ok {
		return nil, errors.NewAccess(d.root, "frame", i,
			fmt.Errorf("row missing from %s", dataFilePath(d.root, ref.Chunk, ref.File)))
	}

	frame := &dataset.Frame{
		Action:       row.Action,
		EpisodeIndex: row.EpisodeIndex,
	}
	if d.decoder != nil && len(d.meta.VideoKeys) > 0 {
		frame.Images = make(map[string]*dataset.Image, len(d.meta.VideoKeys))
		for _, key := range d.meta.VideoKeys {
			img, err := d.decoder(d.root, key, i)
			if err != nil {
				return nil, errors.NewAccess(d.root, "decode "+key, i, err)
			}
			frame.Images[key] = img
		}
	}
	return frame, nil
}

// loadDataFile parses one chunked data file, keyed by global frame index,
// reusing the cache when the same file is requested again.
func (d *Dir) loadDataFile(path string) (map[int]*frameRow, error) {
	if d.cachedPath == path {
		return d.cachedRows, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows := map[int]*frameRow{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var row frameRow
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, errors.NewParse("frame row", path, fmt.Sprintf("line %d: %v", lineNo, err))
		}
		rows[row.Index] = &row
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	d.cachedPath = path
	d.cachedRows = rows
	return rows, nil
}

// Walk returns a lazy sequential walker. The walk rides the same last-file
// cache as positional access, so each data file is parsed once.
func (d *Dir) Walk() dataset.Walker {
	return &dirWalker{d: d}
}

type dirWalker struct {
	d    *Dir
	next int
}

func (w *dirWalker) Next() (*dataset.Frame, error) {
	if w.next >= w.d.meta.TotalFrames {
		return nil, io.EOF
	}
	f, err := w.d.Frame(w.next)
	if err != nil {
		return nil, err
	}
	w.next++
	return f, nil
}
