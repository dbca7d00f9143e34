package types

import (
	"encoding/json"
	"fmt"
)

// Span is a contiguous byte range inside one shard belonging to one tensor.
type Span struct {
	Shard         int   `json:"shard"`
	OffsetInShard int64 `json:"offset_in_shard"`
	Size          int64 `json:"size"`
}

// TensorLocation is a tagged variant over the two on-disk shapes the
// original source expresses as duck-typed records: a tensor that fits
// entirely within one shard (Single) and a tensor whose bytes straddle
// shard boundaries (Spans). Exactly one of the two is populated.
type TensorLocation struct {
	Shape []int64 `json:"shape"`
	DType DType   `json:"dtype"`
	Size  int64   `json:"size"`

	// Single-shard form. Shard is non-nil iff this location is single-shard.
	Shard         *int  `json:"-"`
	OffsetInShard int64 `json:"-"`

	// Multi-shard form. Non-empty iff this location spans shards.
	Spans []Span `json:"-"`
}

// IsMultiShard reports whether the location spans more than one shard.
func (l TensorLocation) IsMultiShard() bool {
	return len(l.Spans) > 0
}

// Validate checks the span-sum and shard-contiguity invariants (I2).
func (l TensorLocation) Validate() error {
	if l.IsMultiShard() {
		var sum int64
		for i, s := range l.Spans {
			if i > 0 && s.Shard != l.Spans[i-1].Shard+1 {
				return fmt.Errorf("tensor location spans non-consecutive shards: %d then %d", l.Spans[i-1].Shard, s.Shard)
			}
			sum += s.Size
		}
		if sum != l.Size {
			return fmt.Errorf("tensor location span sizes sum to %d, want %d", sum, l.Size)
		}
		return nil
	}
	if l.Shard == nil {
		return fmt.Errorf("tensor location has neither a single shard nor spans")
	}
	return nil
}

// locationWire is the on-disk shape: a union discriminated by which keys
// are present, matching the source format's duck-typed records.
type locationWire struct {
	Shape         []int64 `json:"shape"`
	DType         DType   `json:"dtype"`
	Size          int64   `json:"size"`
	Shard         *int    `json:"shard,omitempty"`
	OffsetInShard *int64  `json:"offset_in_shard,omitempty"`
	Spans         []Span  `json:"spans,omitempty"`
}

// MarshalJSON serializes the tagged variant back to its aliased on-disk shape.
func (l TensorLocation) MarshalJSON() ([]byte, error) {
	w := locationWire{Shape: l.Shape, DType: l.DType, Size: l.Size}
	if l.IsMultiShard() {
		w.Spans = l.Spans
	} else {
		w.Shard = l.Shard
		off := l.OffsetInShard
		w.OffsetInShard = &off
	}
	return json.Marshal(w)
}

// UnmarshalJSON reconstructs the tagged variant from whichever on-disk
// shape is present.
func (l *TensorLocation) UnmarshalJSON(data []byte) error {
	var w locationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	l.Shape = w.Shape
	l.DType = w.DType
	l.Size = w.Size
	if len(w.Spans) > 0 {
		l.Spans = w.Spans
		l.Shard = nil
		l.OffsetInShard = 0
		return nil
	}
	if w.Shard == nil {
		return fmt.Errorf("tensor location is neither single-shard nor multi-shard")
	}
	l.Shard = w.Shard
	if w.OffsetInShard != nil {
		l.OffsetInShard = *w.OffsetInShard
	}
	l.Spans = nil
	return nil
}
