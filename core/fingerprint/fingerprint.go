// Package fingerprint computes content fingerprints over episode action
// prefixes. The permutation-mode episode matcher uses a fingerprint index as
// a near-O(E) fast path over the O(E²) pairwise scan: action values are
// quantized to the comparison tolerance grid and hashed with BLAKE3, so an
// exact hash match implies within-tolerance equality for bit-identical
// transforms. Values that land near a quantization boundary can miss the
// index; callers must keep the tolerance scan as a fallback.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/zeebo/blake3"

	"github.com/kestrelrobotics/epcheck/core/dataset"
	"github.com/kestrelrobotics/epcheck/core/errors"
)

// Fingerprint hashes the quantized action prefix of one episode. The hash
// covers the prefix length, each vector's dimension, and every quantized
// value, so differing shapes never collide with differing content.
func Fingerprint(prefix [][]float32, tol float64) string {
	h := blake3.New()
	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], uint64(len(prefix)))
	h.Write(buf[:])
	for _, vec := range prefix {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(vec)))
		h.Write(buf[:])
		for _, v := range vec {
			q := int64(math.Round(float64(v) / tol))
			binary.LittleEndian.PutUint64(buf[:], uint64(q))
			h.Write(buf[:])
		}
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum)
}

// Store is an optional persistent fingerprint cache. Implementations may
// drop entries at any time; Get returning false just forces recomputation.
type Store interface {
	Get(key string) (string, bool)
	Put(key string, fp string)
}

// Index maps fingerprints to the episode ordinals carrying them.
type Index struct {
	prefixFrames int
	tol          float64
	byFP         map[string][]int
}

// PrefixActions reads the first up-to-n action vectors of the episode at
// ordinal ep.
func PrefixActions(ds dataset.Dataset, ep, n int) ([][]float32, error) {
	rec := ds.Meta().Episodes[ep]
	end := rec.FromIndex + n
	if end > rec.ToIndex {
		end = rec.ToIndex
	}
	prefix := make([][]float32, 0, end-rec.FromIndex)
	for i := rec.FromIndex; i < end; i++ {
		f, err := ds.Frame(i)
		if err != nil {
			return nil, errors.Wrapf(err, "episode %d prefix", ep)
		}
		prefix = append(prefix, f.Action)
	}
	return prefix, nil
}

// BuildIndex fingerprints every episode's action prefix. datasetKey namespaces
// cache entries per dataset; store may be nil to disable caching.
func BuildIndex(ds dataset.Dataset, datasetKey string, prefixFrames int, tol float64, store Store) (*Index, error) {
	ix := &Index{
		prefixFrames: prefixFrames,
		tol:          tol,
		byFP:         make(map[string][]int, ds.Meta().TotalEpisodes),
	}

	for ep := 0; ep < ds.Meta().TotalEpisodes; ep++ {
		key := cacheKey(datasetKey, ep, prefixFrames, tol)
		if store != nil {
			if fp, ok := store.Get(key); ok {
				ix.byFP[fp] = append(ix.byFP[fp], ep)
				continue
			}
		}

		prefix, err := PrefixActions(ds, ep, prefixFrames)
		if err != nil {
			return nil, err
		}
		fp := Fingerprint(prefix, tol)
		ix.byFP[fp] = append(ix.byFP[fp], ep)
		if store != nil {
			store.Put(key, fp)
		}
	}
	return ix, nil
}

// Lookup returns the episode ordinals whose prefix fingerprint equals fp.
func (ix *Index) Lookup(fp string) []int {
	return ix.byFP[fp]
}

// PrefixFrames returns the prefix length the index was built with.
func (ix *Index) PrefixFrames() int { return ix.prefixFrames }

// Tolerance returns the quantization tolerance the index was built with.
func (ix *Index) Tolerance() float64 { return ix.tol }

func cacheKey(datasetKey string, ep, prefixFrames int, tol float64) string {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], uint64(ep))
	binary.LittleEndian.PutUint64(buf[8:], uint64(prefixFrames))
	binary.LittleEndian.PutUint64(buf[16:], math.Float64bits(tol))
	return datasetKey + "|" + hex.EncodeToString(buf[:])
}
