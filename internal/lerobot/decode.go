package lerobot

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/kestrelrobotics/epcheck/core/dataset"
)

// DecodeFunc produces the decoded image for one video key at a global frame
// index. Production decoding (video containers and codecs) is an external
// capability; callers inject it here. The checker only ever decodes a small,
// bounded number of frames.
type DecodeFunc func(root, videoKey string, frameIndex int) (*dataset.Image, error)

// RawDecoder reads sidecar raw tensor files written as
// videos/<key>/frame-NNNNNN.f32: a little-endian header of uint32 rank and
// uint32 dims, followed by the float32 payload. Used by tests and CI
// fixtures to exercise the video-decode stage without a codec.
func RawDecoder(root, videoKey string, frameIndex int) (*dataset.Image, error) {
	path := RawFramePath(root, videoKey, frameIndex)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rank uint32
	if err := binary.Read(f, binary.LittleEndian, &rank); err != nil {
		return nil, fmt.Errorf("%s: read rank: %w", path, err)
	}
	if rank == 0 || rank > 8 {
		return nil, fmt.Errorf("%s: implausible rank %d", path, rank)
	}

	shape := make([]int, rank)
	n := 1
	for i := range shape {
		var dim uint32
		if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
			return nil, fmt.Errorf("%s: read dim %d: %w", path, i, err)
		}
		shape[i] = int(dim)
		n *= int(dim)
	}

	data := make([]float32, n)
	if err := binary.Read(f, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%s: read payload: %w", path, err)
	}
	return &dataset.Image{Shape: shape, Data: data}, nil
}

// RawFramePath is the sidecar tensor location RawDecoder reads.
func RawFramePath(root, videoKey string, frameIndex int) string {
	return filepath.Join(root, "videos", videoKey, fmt.Sprintf("frame-%06d.f32", frameIndex))
}

// WriteRawFrame writes an image in the sidecar format RawDecoder reads.
// Exposed for fixture generation.
func WriteRawFrame(root, videoKey string, frameIndex int, img *dataset.Image) error {
	path := RawFramePath(root, videoKey, frameIndex)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeRaw(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func writeRaw(w io.Writer, img *dataset.Image) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(img.Shape))); err != nil {
		return err
	}
	for _, dim := range img.Shape {
		if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
			return err
		}
	}
	return binary.Write(w, binary.LittleEndian, img.Data)
}
