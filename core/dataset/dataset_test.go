package dataset

import (
	"io"
	"testing"

	"github.com/kestrelrobotics/epcheck/core/errors"
)

func TestEpisodeAt(t *testing.T) {
	ds := Synthetic(SyntheticSpec{Episodes: 4, FramesPer: 10, ActionDim: 2})
	meta := ds.Meta()

	tests := []struct {
		frame int
		want  int
	}{
		{0, 0},
		{9, 0},
		{10, 1},
		{25, 2},
		{39, 3},
	}
	for _, tt := range tests {
		got, err := meta.EpisodeAt(tt.frame)
		if err != nil {
			t.Fatalf("EpisodeAt(%d): %v", tt.frame, err)
		}
		if got != tt.want {
			t.Errorf("EpisodeAt(%d) = %d, want %d", tt.frame, got, tt.want)
		}
	}
}

func TestEpisodeAtOutOfRange(t *testing.T) {
	ds := Synthetic(SyntheticSpec{Episodes: 2, FramesPer: 5, ActionDim: 1})
	meta := ds.Meta()

	for _, frame := range []int{-1, 10, 100} {
		if _, err := meta.EpisodeAt(frame); !errors.Is(err, errors.ErrNotFound) {
			t.Errorf("EpisodeAt(%d) error = %v, want ErrNotFound", frame, err)
		}
	}
}

func TestEpisodeAtGapInRanges(t *testing.T) {
	meta := &Meta{
		TotalEpisodes: 2,
		TotalFrames:   20,
		Episodes: []EpisodeRecord{
			{Length: 5, FromIndex: 0, ToIndex: 5},
			{Length: 5, FromIndex: 15, ToIndex: 20},
		},
	}
	if _, err := meta.EpisodeAt(7); err == nil {
		t.Fatal("expected error for frame in a range gap")
	}
}

func TestFrameOutOfRange(t *testing.T) {
	ds := Synthetic(SyntheticSpec{Episodes: 1, FramesPer: 3, ActionDim: 1})

	_, err := ds.Frame(3)
	if err == nil {
		t.Fatal("expected error for out-of-range frame")
	}
	if !errors.Is(err, errors.ErrDatasetAccess) {
		t.Errorf("error = %v, want ErrDatasetAccess", err)
	}

	var accessErr *errors.AccessError
	if !errors.As(err, &accessErr) {
		t.Fatalf("error %v is not an AccessError", err)
	}
	if accessErr.Index != 3 {
		t.Errorf("AccessError.Index = %d, want 3", accessErr.Index)
	}
}

func TestSyntheticConsistency(t *testing.T) {
	ds := Synthetic(SyntheticSpec{
		Episodes:  5,
		FramesPer: 8,
		ActionDim: 3,
		VideoKeys: []string{"observation.images.top"},
	})
	meta := ds.Meta()

	if meta.TotalFrames != 40 {
		t.Fatalf("TotalFrames = %d, want 40", meta.TotalFrames)
	}
	if meta.TotalTasks != 1 {
		t.Errorf("TotalTasks = %d, want 1", meta.TotalTasks)
	}

	for ep, rec := range meta.Episodes {
		if rec.ToIndex-rec.FromIndex != rec.Length {
			t.Errorf("episode %d range width %d != length %d", ep, rec.ToIndex-rec.FromIndex, rec.Length)
		}
		dataRef := rec.Streams[StreamData]
		for name, ref := range rec.Streams {
			if ref != dataRef {
				t.Errorf("episode %d stream %s ref %v != data ref %v", ep, name, ref, dataRef)
			}
		}
	}

	f, err := ds.Frame(17)
	if err != nil {
		t.Fatal(err)
	}
	if f.EpisodeIndex != 2 {
		t.Errorf("frame 17 episode_index = %d, want 2", f.EpisodeIndex)
	}
	want := SyntheticAction(2, 1, 3)
	for d := range want {
		if f.Action[d] != want[d] {
			t.Errorf("frame 17 action[%d] = %v, want %v", d, f.Action[d], want[d])
		}
	}
	img := f.Images["observation.images.top"]
	if img == nil {
		t.Fatal("frame 17 missing decoded image")
	}
	if img.Len() != len(img.Data) {
		t.Errorf("image Len() = %d, data length %d", img.Len(), len(img.Data))
	}
}

func TestWalkMatchesPositionalAccess(t *testing.T) {
	ds := Synthetic(SyntheticSpec{Episodes: 3, FramesPer: 4, ActionDim: 2})

	w := NewWalker(ds)
	for i := 0; ; i++ {
		got, err := w.Next()
		if err == io.EOF {
			if i != ds.Meta().TotalFrames {
				t.Fatalf("walker stopped after %d frames, want %d", i, ds.Meta().TotalFrames)
			}
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		want, err := ds.Frame(i)
		if err != nil {
			t.Fatal(err)
		}
		if got.EpisodeIndex != want.EpisodeIndex || got.Action[0] != want.Action[0] {
			t.Fatalf("frame %d mismatch between walker and positional access", i)
		}
	}
}

// stripWalk hides the Walkable implementation so NewWalker takes the
// positional fallback path.
type stripWalk struct{ Dataset }

func TestIndexWalkerFallback(t *testing.T) {
	ds := stripWalk{Synthetic(SyntheticSpec{Episodes: 2, FramesPer: 3, ActionDim: 1})}

	w := NewWalker(ds)
	if _, ok := w.(*memWalker); ok {
		t.Fatal("expected fallback walker, got native walker")
	}
	count := 0
	for {
		_, err := w.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		count++
	}
	if count != 6 {
		t.Errorf("walked %d frames, want 6", count)
	}
}

func TestPermute(t *testing.T) {
	ds := Synthetic(SyntheticSpec{
		Episodes:  4,
		FramesPer: 5,
		ActionDim: 2,
		TaskFor:   func(ep int) string { return []string{"lift", "place"}[ep%2] },
	})

	perm := []int{2, 0, 3, 1}
	got, err := ds.Permute(perm)
	if err != nil {
		t.Fatal(err)
	}
	meta := got.Meta()

	if meta.TotalFrames != ds.Meta().TotalFrames {
		t.Fatalf("TotalFrames changed: %d -> %d", ds.Meta().TotalFrames, meta.TotalFrames)
	}

	next := 0
	for newIdx, oldIdx := range perm {
		rec := meta.Episodes[newIdx]
		old := ds.Meta().Episodes[oldIdx]

		if rec.Length != old.Length {
			t.Errorf("episode %d length = %d, want %d", newIdx, rec.Length, old.Length)
		}
		if rec.Tasks[0] != old.Tasks[0] {
			t.Errorf("episode %d task = %q, want %q", newIdx, rec.Tasks[0], old.Tasks[0])
		}
		if rec.FromIndex != next || rec.ToIndex != next+rec.Length {
			t.Errorf("episode %d range [%d,%d), want [%d,%d)", newIdx, rec.FromIndex, rec.ToIndex, next, next+rec.Length)
		}
		next += rec.Length

		// Frame content follows the source episode; the label follows the
		// new ordinal.
		f, err := got.Frame(rec.FromIndex)
		if err != nil {
			t.Fatal(err)
		}
		if f.EpisodeIndex != int64(newIdx) {
			t.Errorf("episode %d first frame labeled %d, want %d", newIdx, f.EpisodeIndex, newIdx)
		}
		want := SyntheticAction(oldIdx, 0, 2)
		if f.Action[0] != want[0] {
			t.Errorf("episode %d first action = %v, want %v", newIdx, f.Action[0], want[0])
		}
	}
}

func TestPermuteBadInput(t *testing.T) {
	ds := Synthetic(SyntheticSpec{Episodes: 3, FramesPer: 2, ActionDim: 1})

	if _, err := ds.Permute([]int{0, 1}); err == nil {
		t.Error("expected error for wrong-length permutation")
	}
	if _, err := ds.Permute([]int{0, 1, 5}); err == nil {
		t.Error("expected error for out-of-range ordinal")
	}
}
