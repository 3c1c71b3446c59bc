// Package lerobot reads episodic robot-learning datasets laid out the
// LeRobot way: dataset-level metadata in meta/info.json, per-episode records
// in meta/episodes.jsonl (optionally xz-compressed), and frame rows in
// chunked data files under data/chunk-XXX/file-XXX.
//
// Frame rows are read from JSON-lines data files, a lightweight mirror of
// the production parquet layout; parquet decoding itself is an external
// capability this package does not own, and parquet-only datasets surface
// as unsupported. Video decoding is likewise pluggable: see DecodeFunc.
package lerobot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kestrelrobotics/epcheck/core/errors"
	"github.com/kestrelrobotics/epcheck/internal/fileutil"
)

// Well-known paths within a dataset root.
const (
	infoPath        = "meta/info.json"
	episodesPath    = "meta/episodes.jsonl"
	episodesXZPath  = "meta/episodes.jsonl.xz"
	dataGlobJSONL   = "data/chunk-*/file-*.jsonl"
	dataGlobParquet = "data/chunk-*/file-*.parquet"
)

// Info is the decoded meta/info.json.
type Info struct {
	TotalEpisodes int      `json:"total_episodes"`
	TotalFrames   int      `json:"total_frames"`
	TotalTasks    int      `json:"total_tasks"`
	FPS           float64  `json:"fps"`
	VideoKeys     []string `json:"video_keys"`
	DataFiles     []string `json:"data_files,omitempty"`
}

// LoadInfo reads meta/info.json under root.
func LoadInfo(root string) (*Info, error) {
	path := filepath.Join(root, infoPath)
	var info Info
	if err := fileutil.ReadJSON(path, &info); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("info file", path)
		}
		return nil, errors.NewParse("info.json", path, err.Error())
	}
	if info.TotalEpisodes < 0 || info.TotalFrames < 0 {
		return nil, errors.NewParse("info.json", path, "negative totals")
	}
	return &info, nil
}

// DiscoverDataFiles globs the chunked data files under root, returning
// root-relative slash paths in sorted order.
func DiscoverDataFiles(root string) ([]string, error) {
	var found []string
	for _, pattern := range []string{dataGlobJSONL, dataGlobParquet} {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s failed: %w", pattern, err)
		}
		found = append(found, matches...)
	}

	rel := make([]string, 0, len(found))
	for _, m := range found {
		r, err := filepath.Rel(root, m)
		if err != nil {
			return nil, err
		}
		rel = append(rel, filepath.ToSlash(r))
	}
	sort.Strings(rel)
	return rel, nil
}

// PatchInfoDataFiles discovers the dataset's data files and rewrites the
// data_files list in meta/info.json, preserving all other fields. Returns
// the discovered list. This is the repair step for datasets whose info file
// predates the data_files field or went stale after a re-chunking transform.
func PatchInfoDataFiles(root string) ([]string, error) {
	files, err := DiscoverDataFiles(root)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.NewNotFound("data file", filepath.Join(root, "data"))
	}

	path := filepath.Join(root, infoPath)
	// Round-trip through a generic map so fields this tool does not model
	// survive the rewrite.
	var raw map[string]any
	if err := fileutil.ReadJSON(path, &raw); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("info file", path)
		}
		return nil, errors.NewParse("info.json", path, err.Error())
	}
	raw["data_files"] = files

	if err := fileutil.WriteJSON(path, raw); err != nil {
		return nil, errors.Wrap(err, "rewrite info.json")
	}
	return files, nil
}

// dataFilePath maps a chunk/file address to the on-disk JSONL data file.
func dataFilePath(root string, chunk, file int) string {
	return filepath.Join(root, "data", fmt.Sprintf("chunk-%03d", chunk), fmt.Sprintf("file-%03d.jsonl", file))
}

// isParquetOnly reports whether the dataset has parquet data files but no
// JSONL mirror, which this provider cannot read.
func isParquetOnly(files []string) bool {
	parquet := false
	for _, f := range files {
		switch {
		case strings.HasSuffix(f, ".jsonl"):
			return false
		case strings.HasSuffix(f, ".parquet"):
			parquet = true
		}
	}
	return parquet
}
