package lerobot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ulikunitz/xz"

	"github.com/kestrelrobotics/epcheck/core/dataset"
	"github.com/kestrelrobotics/epcheck/core/errors"
)

// episodeRow mirrors one line of meta/episodes.jsonl. Stream addresses use
// flat keys ("data/chunk_index", "videos/<key>/file_index", ...) so the
// fixed fields are declared and the rest is captured loosely.
type episodeRow struct {
	EpisodeIndex int      `json:"episode_index"`
	Length       int      `json:"length"`
	Tasks        []string `json:"tasks"`
	FromIndex    int      `json:"dataset_from_index"`
	ToIndex      int      `json:"dataset_to_index"`
}

const (
	chunkIndexSuffix = "/chunk_index"
	fileIndexSuffix  = "/file_index"
)

// LoadEpisodes reads meta/episodes.jsonl (or its .xz variant) under root.
func LoadEpisodes(root string) ([]dataset.EpisodeRecord, error) {
	r, path, err := openEpisodes(root)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var records []dataset.EpisodeRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		rec, err := parseEpisodeLine([]byte(line))
		if err != nil {
			return nil, errors.NewParse("episodes.jsonl", path, fmt.Sprintf("line %d: %v", lineNo, err))
		}
		if rec.EpisodeIndex != len(records) {
			return nil, errors.NewParse("episodes.jsonl", path,
				fmt.Sprintf("line %d: episode_index %d out of order, expected %d", lineNo, rec.EpisodeIndex, len(records)))
		}
		records = append(records, rec.EpisodeRecord)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewParse("episodes.jsonl", path, err.Error())
	}
	return records, nil
}

type parsedEpisode struct {
	dataset.EpisodeRecord
	EpisodeIndex int
}

func parseEpisodeLine(line []byte) (*parsedEpisode, error) {
	var row episodeRow
	if err := json.Unmarshal(line, &row); err != nil {
		return nil, err
	}
	if row.Length <= 0 {
		return nil, fmt.Errorf("non-positive length %d", row.Length)
	}
	if row.ToIndex-row.FromIndex != row.Length {
		return nil, fmt.Errorf("frame range [%d,%d) does not match length %d", row.FromIndex, row.ToIndex, row.Length)
	}

	// Second pass over the raw object for the flat stream-address keys.
	var flat map[string]json.Number
	dec := json.NewDecoder(strings.NewReader(string(line)))
	dec.UseNumber()
	var generic map[string]any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	flat = map[string]json.Number{}
	for k, v := range generic {
		if n, ok := v.(json.Number); ok {
			flat[k] = n
		}
	}

	streams := map[string]dataset.FileRef{}
	for key, num := range flat {
		stream, isChunk := strings.CutSuffix(key, chunkIndexSuffix)
		if !isChunk {
			continue
		}
		chunk, err := num.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s: %v", key, err)
		}
		fileNum, ok := flat[stream+fileIndexSuffix]
		if !ok {
			return nil, fmt.Errorf("stream %s has chunk_index but no file_index", stream)
		}
		file, err := fileNum.Int64()
		if err != nil {
			return nil, fmt.Errorf("%s%s: %v", stream, fileIndexSuffix, err)
		}
		streams[stream] = dataset.FileRef{Chunk: int(chunk), File: int(file)}
	}

	return &parsedEpisode{
		EpisodeRecord: dataset.EpisodeRecord{
			Length:    row.Length,
			Tasks:     row.Tasks,
			FromIndex: row.FromIndex,
			ToIndex:   row.ToIndex,
			Streams:   streams,
		},
		EpisodeIndex: row.EpisodeIndex,
	}, nil
}

// openEpisodes opens the episodes metadata file, transparently decompressing
// the .xz variant when the plain file is absent.
func openEpisodes(root string) (io.ReadCloser, string, error) {
	plain := filepath.Join(root, episodesPath)
	if f, err := os.Open(plain); err == nil {
		return f, plain, nil
	} else if !os.IsNotExist(err) {
		return nil, plain, errors.NewAccess(root, "open episodes", -1, err)
	}

	compressed := filepath.Join(root, episodesXZPath)
	f, err := os.Open(compressed)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, compressed, errors.NewNotFound("episodes file", plain)
		}
		return nil, compressed, errors.NewAccess(root, "open episodes", -1, err)
	}
	xr, err := xz.NewReader(f)
	if err != nil {
		f.Close()
		return nil, compressed, errors.NewParse("episodes.jsonl.xz", compressed, err.Error())
	}
	return &xzReadCloser{Reader: xr, file: f}, compressed, nil
}

type xzReadCloser struct {
	*xz.Reader
	file *os.File
}

func (r *xzReadCloser) Close() error {
	return r.file.Close()
}
