// Package gguf decodes the Format G tagged-binary header: magic, version,
// typed metadata key/value pairs, and tensor records, up to the
// tensor-data origin. It never reads tensor bulk data.
//
// Parse implements the wire format directly against a bounded io.Reader,
// which is what the importer has on hand for remote or streamed sources (a
// prefix slice, not a local path). ParseFile additionally enriches the
// result with github.com/gpustack/gguf-parser-go when the source is a real
// local file: the library is the authoritative decoder for the
// general-purpose metadata section (architecture, parameter count,
// quantization file type, multi-part shard discovery) that the teacher
// already depends on it for. It is not used for the tensor offset table
// itself, since its public API exposes that section only through
// higher-level estimation helpers, not a byte-exact descriptor list; that
// table still comes from the decoder below, which implements the same
// wire format gguf-parser-go parses internally.
package gguf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	parser "github.com/gpustack/gguf-parser-go"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

const (
	magic = "GGUF"

	maxStringLen = 1 << 20  // 1 MiB, well above any real metadata string
	maxArrayLen  = 1 << 24  // 16M elements
	headerLimit  = 10 << 20 // bounded-prefix read: at most 10 MiB of header
	alignment    = 32
)

type valueTag uint32

const (
	tagUint8 valueTag = iota
	tagInt8
	tagUint16
	tagInt16
	tagUint32
	tagInt32
	tagFloat32
	tagBool
	tagString
	tagArray
	tagUint64
	tagInt64
	tagFloat64
)

// Parse decodes a Format G header from r, which must supply at least the
// header's bytes (callers bound this to headerLimit before invoking Parse).
func Parse(r io.Reader) (types.ParseResult, error) {
	br := bufio.NewReader(io.LimitReader(r, headerLimit))

	var magicBuf [4]byte
	if _, err := io.ReadFull(br, magicBuf[:]); err != nil {
		return types.ParseResult{}, fmt.Errorf("read magic: %w", err)
	}
	if string(magicBuf[:]) != magic {
		return types.ParseResult{}, &types.BadMagicError{Want: magic, Got: string(magicBuf[:])}
	}

	var version uint32
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return types.ParseResult{}, fmt.Errorf("read version: %w", err)
	}
	if version != 2 && version != 3 {
		return types.ParseResult{}, &types.UnsupportedVersionError{Version: version}
	}

	var tensorCount, metadataCount uint64
	if err := binary.Read(br, binary.LittleEndian, &tensorCount); err != nil {
		return types.ParseResult{}, fmt.Errorf("read tensor count: %w", err)
	}
	if err := binary.Read(br, binary.LittleEndian, &metadataCount); err != nil {
		return types.ParseResult{}, fmt.Errorf("read metadata count: %w", err)
	}

	consumed := int64(4 + 4 + 8 + 8)
	metadata := make(map[string]any, metadataCount)
	for i := uint64(0); i < metadataCount; i++ {
		key, n, err := readString(br)
		if err != nil {
			return types.ParseResult{}, fmt.Errorf("read metadata key %d: %w", i, err)
		}
		consumed += n
		val, n, err := readValue(br)
		if err != nil {
			return types.ParseResult{}, fmt.Errorf("read metadata value for %q: %w", key, err)
		}
		consumed += n
		metadata[key] = val
	}

	descriptors := make([]types.TensorDescriptor, 0, tensorCount)
	for i := uint64(0); i < tensorCount; i++ {
		name, n, err := readString(br)
		if err != nil {
			return types.ParseResult{}, fmt.Errorf("read tensor name %d: %w", i, err)
		}
		consumed += n

		var nDims uint32
		if err := binary.Read(br, binary.LittleEndian, &nDims); err != nil {
			return types.ParseResult{}, fmt.Errorf("read tensor ndims for %q: %w", name, err)
		}
		consumed += 4

		shape := make([]int64, nDims)
		for d := range shape {
			var dim uint64
			if err := binary.Read(br, binary.LittleEndian, &dim); err != nil {
				return types.ParseResult{}, fmt.Errorf("read dim %d for %q: %w", d, name, err)
			}
			shape[d] = int64(dim)
			consumed += 8
		}

		var dtypeTag uint32
		if err := binary.Read(br, binary.LittleEndian, &dtypeTag); err != nil {
			return types.ParseResult{}, fmt.Errorf("read dtype tag for %q: %w", name, err)
		}
		consumed += 4
		dt, ok := tensorDtypes[dtypeTag]
		if !ok {
			return types.ParseResult{}, &types.UnknownDtypeError{Raw: dtypeTag}
		}

		var offset uint64
		if err := binary.Read(br, binary.LittleEndian, &offset); err != nil {
			return types.ParseResult{}, fmt.Errorf("read offset for %q: %w", name, err)
		}
		consumed += 8

		byteSize, err := dt.ByteSize(types.NumElements(shape))
		if err != nil {
			return types.ParseResult{}, fmt.Errorf("size tensor %q: %w", name, err)
		}

		descriptors = append(descriptors, types.TensorDescriptor{
			Name:       name,
			Shape:      shape,
			DType:      dt,
			ByteSize:   byteSize,
			ByteOffset: int64(offset),
		})
	}

	origin := alignUp(consumed, alignment)

	arch := architectureFromMetadata(metadata)
	quant := dominantQuantization(descriptors)
	moe := moeFromMetadata(metadata)
	modelType, _ := metadata["general.architecture"].(string)

	return types.ParseResult{
		Descriptors:      descriptors,
		Architecture:     arch,
		Quantization:     quant,
		MoE:              moe,
		TensorDataOrigin: origin,
		ModelType:        modelType,
	}, nil
}

// ParseFile parses a local GGUF file at path: the tensor offset table comes
// from Parse against a bounded prefix read of the file, same as any other
// source, and the result is then enriched in place with
// gguf-parser-go's own decode of the file, which is the grounds-truth
// decoder the teacher already uses for this format. A library parse
// failure does not fail the whole call — Parse above has already
// succeeded, so the result is still usable, just without the enrichment.
func ParseFile(path string) (types.ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.ParseResult{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	result, err := Parse(io.LimitReader(f, headerLimit))
	if err != nil {
		return types.ParseResult{}, err
	}

	gf, err := parser.ParseGGUFFile(path)
	if err != nil {
		return result, nil
	}
	enrichFromLibrary(&result, gf)
	return result, nil
}

// CompleteShards returns every part-file path belonging to the same
// multi-part GGUF model as path (per the <name>-NNNNN-of-MMMMM.gguf naming
// convention), or just path itself when it is not part of a sharded set.
// Delegates to gguf-parser-go's own shard-name enumeration, the same
// helper the teacher uses to build layers for each part.
func CompleteShards(path string) []string {
	shards := parser.CompleteShardGGUFFilename(path)
	if len(shards) == 0 {
		return []string{path}
	}
	return shards
}

// enrichFromLibrary overlays gf's own decode of the metadata section onto
// result's architecture fields, preferring it over the in-repo decoder's
// best-effort guesses since it is the library the corpus already trusts
// for this format.
func enrichFromLibrary(result *types.ParseResult, gf *parser.GGUFFile) {
	meta := gf.Metadata()
	if a := strings.TrimSpace(meta.Architecture); a != "" {
		result.Architecture.Name = a
		result.ModelType = a
	}
	if result.Architecture.Extra == nil {
		result.Architecture.Extra = map[string]string{}
	}
	if ft := strings.TrimSpace(meta.FileType.String()); ft != "" {
		result.Architecture.Extra["gguf.file_type"] = ft
	}
	if params := strings.TrimSpace(meta.Parameters.String()); params != "" {
		result.Architecture.Extra["gguf.parameters"] = params
	}
	for _, kv := range gf.Header.MetadataKV {
		if kv.ValueType == parser.GGUFMetadataValueTypeString {
			result.Architecture.Extra[kv.Key] = kv.ValueString()
		}
	}
}

func alignUp(n, align int64) int64 {
	if rem := n % align; rem != 0 {
		return n + (align - rem)
	}
	return n
}

func readString(r io.Reader) (string, int64, error) {
	var length uint64
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", 0, err
	}
	if length > maxStringLen {
		return "", 0, &types.OversizedStringError{Length: length, Limit: maxStringLen}
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", 0, err
	}
	return string(buf), int64(8 + length), nil
}

// readValue reads one typed metadata value and returns it plus the number of
// bytes consumed (including the 4-byte type tag).
func readValue(r io.Reader) (any, int64, error) {
	var tag uint32
	if err := binary.Read(r, binary.LittleEndian, &tag); err != nil {
		return nil, 0, err
	}
	v, n, err := readValueBody(r, valueTag(tag))
	if err != nil {
		return nil, 0, err
	}
	return v, 4 + n, nil
}

func readValueBody(r io.Reader, tag valueTag) (any, int64, error) {
	switch tag {
	case tagUint8:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 1, err
	case tagInt8:
		var v int8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 1, err
	case tagUint16:
		var v uint16
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 2, err
	case tagInt16:
		var v int16
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 2, err
	case tagUint32:
		var v uint32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 4, err
	case tagInt32:
		var v int32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 4, err
	case tagFloat32:
		var v float32
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 4, err
	case tagUint64:
		var v uint64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 8, err
	case tagInt64:
		var v int64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 8, err
	case tagFloat64:
		var v float64
		err := binary.Read(r, binary.LittleEndian, &v)
		return v, 8, err
	case tagBool:
		var v uint8
		err := binary.Read(r, binary.LittleEndian, &v)
		return v != 0, 1, err
	case tagString:
		s, n, err := readString(r)
		return s, n, err
	case tagArray:
		return readArray(r)
	default:
		return nil, 0, &types.UnknownDtypeError{Raw: uint32(tag)}
	}
}

func readArray(r io.Reader) (any, int64, error) {
	var elemTag uint32
	if err := binary.Read(r, binary.LittleEndian, &elemTag); err != nil {
		return nil, 0, err
	}
	var count uint64
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, 0, err
	}
	if count > maxArrayLen {
		return nil, 0, &types.OversizedArrayError{Length: count, Limit: maxArrayLen}
	}
	consumed := int64(4 + 8)
	values := make([]any, count)
	for i := uint64(0); i < count; i++ {
		v, n, err := readValueBody(r, valueTag(elemTag))
		if err != nil {
			return nil, 0, err
		}
		values[i] = v
		consumed += n
	}
	return values, consumed, nil
}

var tensorDtypes = map[uint32]types.DType{
	0:  types.F32,
	1:  types.F16,
	2:  types.Q4_0,
	3:  types.Q4_1,
	6:  types.Q5_0,
	7:  types.Q5_1,
	8:  types.Q8_0,
	9:  types.Q8_1,
	10: types.Q2_K,
	11: types.Q3_K,
	12: types.Q4_K,
	13: types.Q5_K,
	14: types.Q6_K,
	15: types.Q8_K,
	16: types.IQ2_XXS,
	17: types.IQ2_XS,
	18: types.IQ3_XXS,
	19: types.IQ1_S,
	20: types.IQ4_NL,
	21: types.IQ3_S,
	22: types.IQ2_S,
	23: types.IQ4_XS,
	24: types.I8,
	25: types.I16,
	26: types.I32,
	27: types.I64,
	28: types.F64,
	29: types.BF16,
}

func architectureFromMetadata(md map[string]any) types.Architecture {
	arch := types.Architecture{Extra: map[string]string{}}
	if v, ok := md["general.architecture"].(string); ok {
		arch.Name = v
	}
	intField := func(keys ...string) int {
		for _, k := range keys {
			if v, ok := toInt(md[k]); ok {
				return v
			}
		}
		return 0
	}
	prefix := arch.Name
	arch.LayerCount = intField(prefix + ".block_count")
	arch.HeadCount = intField(prefix + ".attention.head_count")
	arch.HeadCountKV = intField(prefix + ".attention.head_count_kv")
	arch.EmbeddingLength = intField(prefix + ".embedding_length")
	arch.ContextLength = intField(prefix + ".context_length")
	arch.VocabSize = intField(prefix + ".vocab_size", "tokenizer.ggml.vocab_size")

	for k, v := range md {
		if s, ok := v.(string); ok && len(arch.Extra) < 64 {
			arch.Extra[k] = s
		}
	}
	return arch
}

func moeFromMetadata(md map[string]any) *types.MoEConfig {
	var expertCount int
	var ok bool
	for k, v := range md {
		if bytes.HasSuffix([]byte(k), []byte("expert_count")) {
			if n, o := toInt(v); o {
				expertCount = n
				ok = true
			}
		}
	}
	if !ok || expertCount == 0 {
		return nil
	}
	cfg := &types.MoEConfig{ExpertCount: expertCount}
	for k, v := range md {
		if bytes.HasSuffix([]byte(k), []byte("expert_used_count")) {
			if n, o := toInt(v); o {
				cfg.ExpertsPerToken = n
			}
		}
	}
	return cfg
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case uint8:
		return int(n), true
	case int8:
		return int(n), true
	case uint16:
		return int(n), true
	case int16:
		return int(n), true
	case uint32:
		return int(n), true
	case int32:
		return int(n), true
	case uint64:
		return int(n), true
	case int64:
		return int(n), true
	default:
		return 0, false
	}
}

// dominantQuantization picks the dtype with the largest cumulative byte size
// across non-embedding, non-output tensors, breaking ties by iteration order.
func dominantQuantization(descriptors []types.TensorDescriptor) types.DType {
	totals := make(map[types.DType]int64)
	var order []types.DType
	for _, d := range descriptors {
		if isEmbeddingOrOutput(d.Name) {
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

func isEmbeddingOrOutput(name string) bool {
	return bytes.Contains([]byte(name), []byte("token_embd")) ||
		bytes.Contains([]byte(name), []byte("output"))
}
