package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		name     string
		err      *NotFoundError
		wantMsg  string
		wantBase error
	}{
		{
			name:     "with ID",
			err:      &NotFoundError{Resource: "report", ID: "run-42"},
			wantMsg:  "report not found: run-42",
			wantBase: ErrNotFound,
		},
		{
			name:     "without ID",
			err:      &NotFoundError{Resource: "data file"},
			wantMsg:  "data file not found",
			wantBase: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if got := tt.err.Unwrap(); !errors.Is(got, tt.wantBase) {
				t.Errorf("Unwrap() = %v, want %v", got, tt.wantBase)
			}
		})
	}

	t.Run("with underlying error", func(t *testing.T) {
		underlyingErr := fmt.Errorf("disk error")
		err := &NotFoundError{Resource: "file", ID: "info.json", Err: underlyingErr}
		if got := err.Error(); got != "file not found: info.json" {
			t.Errorf("Error() = %q", got)
		}
		if got := err.Unwrap(); got != underlyingErr {
			t.Errorf("Unwrap() = %v, want %v", got, underlyingErr)
		}
	})
}

func TestAccessError(t *testing.T) {
	tests := []struct {
		name    string
		err     *AccessError
		wantMsg string
	}{
		{
			name:    "with index",
			err:     &AccessError{Dataset: "candidate", Operation: "frame", Index: 17, Err: fmt.Errorf("short read")},
			wantMsg: "dataset candidate: frame at index 17: short read",
		},
		{
			name:    "without index",
			err:     &AccessError{Dataset: "reference", Operation: "meta", Index: -1, Err: fmt.Errorf("no such file")},
			wantMsg: "dataset reference: meta: no such file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("Error() = %q, want %q", got, tt.wantMsg)
			}
			if !errors.Is(tt.err, ErrDatasetAccess) {
				t.Error("AccessError should match ErrDatasetAccess")
			}
		})
	}

	t.Run("unwrap underlying", func(t *testing.T) {
		underlying := fmt.Errorf("decode failed")
		err := NewAccess("candidate", "decode", 3, underlying)
		if !errors.Is(err, underlying) {
			t.Error("AccessError should unwrap to underlying error")
		}
		if !errors.Is(err, ErrDatasetAccess) {
			t.Error("wrapped AccessError should still match ErrDatasetAccess")
		}
	})
}

func TestParseError(t *testing.T) {
	err := &ParseError{Format: "episodes.jsonl", Path: "/data/meta/episodes.jsonl", Message: "bad line 4"}
	want := "failed to parse episodes.jsonl at /data/meta/episodes.jsonl: bad line 4"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrInvalidInput) {
		t.Error("ParseError should unwrap to ErrInvalidInput")
	}

	errNoPath := &ParseError{Format: "info.json", Message: "missing total_frames"}
	if got := errNoPath.Error(); got != "failed to parse info.json: missing total_frames" {
		t.Errorf("Error() = %q", got)
	}
}

func TestUnsupportedError(t *testing.T) {
	err := NewUnsupported("data format", "parquet decoding requires an external provider")
	want := "unsupported data format: parquet decoding requires an external provider"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
	if !errors.Is(err, ErrUnsupported) {
		t.Error("UnsupportedError should unwrap to ErrUnsupported")
	}
}

func TestWrap(t *testing.T) {
	if Wrap(nil, "context") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	base := errors.New("base")
	wrapped := Wrap(base, "opening dataset")
	if wrapped.Error() != "opening dataset: base" {
		t.Errorf("Wrap() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should match base")
	}

	wrappedf := Wrapf(base, "episode %d", 7)
	if wrappedf.Error() != "episode 7: base" {
		t.Errorf("Wrapf() = %q", wrappedf.Error())
	}
}
