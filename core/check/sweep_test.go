package check

import (
	"context"
	"testing"

	"github.com/kestrelrobotics/epcheck/core/dataset"
	"github.com/kestrelrobotics/epcheck/core/errors"
)

func TestSweepCountsEveryFrame(t *testing.T) {
	ds := dataset.Synthetic(dataset.SyntheticSpec{Episodes: 7, FramesPer: 13, ActionDim: 2})

	result, err := Sweep(context.Background(), ds)
	if err != nil {
		t.Fatal(err)
	}
	if result.Frames != 91 {
		t.Errorf("swept %d frames, want 91", result.Frames)
	}
}

func TestSweepCancellation(t *testing.T) {
	ds := dataset.Synthetic(dataset.SyntheticSpec{Episodes: 3, FramesPer: 10, ActionDim: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Sweep(ctx, ds)
	if err != context.Canceled {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if result == nil || result.Frames != 0 {
		t.Errorf("result = %+v, want 0 frames", result)
	}
}

// positional hides the native walker so the sweep takes the
// positional-access fallback.
type positional struct{ dataset.Dataset }

func TestSweepAccessError(t *testing.T) {
	// Metadata claims more frames than the store holds; the fallback walker
	// hits the missing index.
	full := dataset.Synthetic(dataset.SyntheticSpec{Episodes: 2, FramesPer: 5, ActionDim: 1})
	short := make([]*dataset.Frame, 0, 6)
	for i := 0; i < 6; i++ {
		f, err := full.Frame(i)
		if err != nil {
			t.Fatal(err)
		}
		short = append(short, f)
	}
	ds := positional{dataset.NewMem(full.Meta(), short)}

	result, err := Sweep(context.Background(), ds)
	if err == nil {
		t.Fatal("expected access error")
	}
	if !errors.Is(err, errors.ErrDatasetAccess) {
		t.Errorf("error = %v, want ErrDatasetAccess", err)
	}
	if result.Frames != 6 {
		t.Errorf("swept %d frames before the failure, want 6", result.Frames)
	}
}
