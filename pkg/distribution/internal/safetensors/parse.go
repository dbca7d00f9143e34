// Package safetensors decodes the Format S JSON-framed header: an 8-byte
// little-endian length prefix followed by that many bytes of UTF-8 JSON
// describing each tensor's dtype, shape, and byte range. An optional
// sibling index maps tensor name to part file for sharded sources. The
// header codec itself is github.com/nlpodyssey/safetensors/header, which
// implements the same wire format this package used to decode by hand.
package safetensors

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/nlpodyssey/safetensors/dtype"
	"github.com/nlpodyssey/safetensors/header"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

const headerSizeLimit = 100 << 20 // sanity ceiling on header length

var dtypeFromLibrary = map[dtype.DType]types.DType{
	dtype.F64: types.F64, dtype.F32: types.F32, dtype.F16: types.F16, dtype.BF16: types.BF16,
	dtype.I64: types.I64, dtype.I32: types.I32, dtype.I16: types.I16, dtype.I8: types.I8,
	dtype.U64: types.U64, dtype.U32: types.U32, dtype.U16: types.U16, dtype.U8: types.U8,
	dtype.Bool: types.BOOL,
}

// ShardIndex is the sibling "index.json" mapping tensor name to the part
// file that holds it, used for multi-file Format S sources.
type ShardIndex struct {
	Metadata  map[string]string `json:"metadata"`
	WeightMap map[string]string `json:"weight_map"`
}

// Parse decodes a single Format S source. r must be positioned at the start
// of the 8-byte header-length prefix. The length is checked against
// headerSizeLimit before header.Read is asked to decode the JSON body, so a
// hostile or corrupt prefix cannot force an unbounded read.
func Parse(r io.Reader) (types.ParseResult, error) {
	var sizePrefix [8]byte
	if _, err := io.ReadFull(r, sizePrefix[:]); err != nil {
		return types.ParseResult{}, fmt.Errorf("read header length: %w", err)
	}
	headerLen := binary.LittleEndian.Uint64(sizePrefix[:])
	if headerLen > headerSizeLimit {
		return types.ParseResult{}, &types.HeaderTooLargeError{Size: int64(headerLen), Limit: headerSizeLimit}
	}

	h, err := header.Read(io.MultiReader(bytes.NewReader(sizePrefix[:]), r))
	if err != nil {
		return types.ParseResult{}, &types.InvalidJSONError{Cause: err}
	}
	if err := h.Validate(); err != nil {
		return types.ParseResult{}, fmt.Errorf("invalid safetensors header: %w", err)
	}

	descriptors := make([]types.TensorDescriptor, 0, len(h.Tensors))
	for name, t := range h.Tensors {
		dt, ok := dtypeFromLibrary[t.DType]
		if !ok {
			return types.ParseResult{}, &types.UnknownDtypeError{Raw: uint32(t.DType)}
		}
		shape := make([]int64, len(t.Shape))
		for i, d := range t.Shape {
			shape[i] = int64(d)
		}
		descriptors = append(descriptors, types.TensorDescriptor{
			Name:       name,
			Shape:      shape,
			DType:      dt,
			ByteSize:   int64(t.DataOffsets.End - t.DataOffsets.Begin),
			ByteOffset: int64(t.DataOffsets.Begin),
		})
	}

	sort.Slice(descriptors, func(i, j int) bool {
		return descriptors[i].ByteOffset < descriptors[j].ByteOffset
	})

	arch := types.Architecture{Extra: map[string]string{}}
	if a, ok := h.Metadata["architecture"]; ok {
		arch.Name = a
	}
	for k, v := range h.Metadata {
		arch.Extra[k] = v
	}

	return types.ParseResult{
		Descriptors:      descriptors,
		Architecture:     arch,
		Quantization:     dominantQuantization(descriptors),
		MoE:              nil,
		TensorDataOrigin: int64(h.ByteBufferOffset),
		ModelType:        arch.Name,
	}, nil
}

// dominantQuantization mirrors the Format G rule: the dtype with the
// largest cumulative byte size across non-embedding, non-output tensors.
func dominantQuantization(descriptors []types.TensorDescriptor) types.DType {
	totals := make(map[types.DType]int64)
	var order []types.DType
	for _, d := range descriptors {
		if containsAny(d.Name, "embed", "lm_head") {
			continue
		}
		if _, seen := totals[d.DType]; !seen {
			order = append(order, d.DType)
		}
		totals[d.DType] += d.ByteSize
	}
	var best types.DType
	var bestSize int64 = -1
	for _, dt := range order {
		if totals[dt] > bestSize {
			best = dt
			bestSize = totals[dt]
		}
	}
	return best
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

// ResolveIndex merges per-part descriptor lists produced by parsing each
// file named in idx.WeightMap, in ascending part-file order, adjusting
// ByteOffset so it is relative to the concatenation rather than any single
// part. partOffsets maps part filename to its cumulative start offset in
// the concatenated stream.
func ResolveIndex(idx ShardIndex, perPart map[string][]types.TensorDescriptor, partOffsets map[string]int64) []types.TensorDescriptor {
	var merged []types.TensorDescriptor
	for part, descs := range perPart {
		base := partOffsets[part]
		for _, d := range descs {
			d.ByteOffset += base
			merged = append(merged, d)
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].ByteOffset < merged[j].ByteOffset
	})
	return merged
}
