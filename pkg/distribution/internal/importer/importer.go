// Package importer streams a source container's tensor-data region into
// the shard store, emitting per-shard hashes, a tensor-location map that
// may span shards, and the normalized manifest.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/clocksmith/doppler/pkg/distribution/format"
	"github.com/clocksmith/doppler/pkg/distribution/internal/progress"
	"github.com/clocksmith/doppler/pkg/distribution/internal/store"
	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// Source is an opaque byte source the importer reads from: a bounded
// slice for header parsing, and (when StreamSource is also implemented) a
// lazy chunked read of the tensor-data region.
type Source interface {
	Name() string
	Size() int64
	Slice(start, end int64) ([]byte, error)
}

// StreamSource is the preferred, streaming variant of Source: it can open
// a lazy chunked reader starting at an arbitrary offset instead of
// requiring the caller to materialize bounded slices.
type StreamSource interface {
	Source
	Stream(ctx context.Context, start int64) (io.ReadCloser, error)
}

// Options configures one Import call.
type Options struct {
	ModelID      string // overrides the name-derived model ID when non-empty
	HashAlgo     types.HashAlgorithm
	Progress     progress.Sink
}

// Import runs the importer/converter algorithm (spec §4.C) against src,
// writing shards and a manifest into store rooted at root.
func Import(ctx context.Context, root *store.LocalStore, src Source, opts Options) (types.Manifest, error) {
	sink := opts.Progress
	if sink == nil {
		sink = progress.NopSink{}
	}

	headerEnd := src.Size()
	if headerEnd > types.HeaderReadLimit {
		headerEnd = types.HeaderReadLimit
	}
	header, err := src.Slice(0, headerEnd)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("read header prefix: %w", err)
	}

	fmtImpl, err := format.DetectFromPath(src.Name(), nil)
	if err != nil {
		fmtImpl, err = format.DetectFromReader(strings.NewReader(string(header)))
		if err != nil {
			return types.Manifest{}, fmt.Errorf("detect container format: %w", err)
		}
	}
	parsed, err := parseHeader(fmtImpl, src, header)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("parse header: %w", err)
	}

	modelID := opts.ModelID
	if modelID == "" {
		modelID = deriveModelID(src.Name())
	}
	modelID = store.SanitizeModelID(modelID)

	handle, err := root.OpenModel(modelID)
	if err != nil {
		return types.Manifest{}, fmt.Errorf("open model directory: %w", err)
	}

	sink.Report(progress.NewEvent(progress.StageParsing, modelID, 0, 1))
	if err := ctx.Err(); err != nil {
		root.DeleteModel(modelID)
		return types.Manifest{}, &types.CancelledError{Operation: "parsing"}
	}

	hashAlgo := opts.HashAlgo
	if hashAlgo == "" {
		hashAlgo = types.BLAKE3
	}
	hasher, err := store.ResolveHasher(hashAlgo)
	if err != nil {
		root.DeleteModel(modelID)
		return types.Manifest{}, err
	}

	shards, locations, totalSize, err := shardTensorData(ctx, handle, hasher, src, parsed, modelID, sink)
	if err != nil {
		root.DeleteModel(modelID)
		return types.Manifest{}, err
	}

	manifest := types.Manifest{
		Version:       1,
		ModelID:       modelID,
		ModelType:     parsed.ModelType,
		Quantization:  parsed.Quantization,
		HashAlgorithm: hashAlgo,
		Architecture:  parsed.Architecture,
		MoEConfig:     parsed.MoE,
		Shards:        shards,
		Tensors:       locations,
		TotalSize:     totalSize,
		Metadata:      map[string]string{},
	}
	manifest.FullHash = fullHash(hasher, shards)

	if err := manifest.Validate(); err != nil {
		root.DeleteModel(modelID)
		return types.Manifest{}, fmt.Errorf("assembled manifest invalid: %w", err)
	}
	if err := handle.SaveManifest(manifest); err != nil {
		root.DeleteModel(modelID)
		return types.Manifest{}, fmt.Errorf("save manifest: %w", err)
	}

	sink.Report(progress.NewEvent(progress.StageComplete, modelID, totalSize, totalSize))
	return manifest, nil
}

// fullHash is the hash of the concatenation of all shard hashes, an
// authenticated summary rather than the source's "first shard's hash"
// placeholder.
func fullHash(hasher store.Hasher, shards []types.Shard) string {
	var concatenated strings.Builder
	for _, s := range shards {
		concatenated.WriteString(s.HashHex)
	}
	return hasher.Sum([]byte(concatenated.String()))
}

func deriveModelID(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func sliceReader(b []byte) io.Reader {
	return strings.NewReader(string(b))
}

// parseHeader prefers a format's richer PathParser when src's name is a
// real local file on this machine, falling back to the bounded-prefix
// Parse otherwise (remote sources, or a Source whose Name() is not a
// filesystem path).
func parseHeader(fmtImpl format.Format, src Source, header []byte) (types.ParseResult, error) {
	if pp, ok := fmtImpl.(format.PathParser); ok {
		if _, statErr := os.Stat(src.Name()); statErr == nil {
			return pp.ParsePath(src.Name())
		}
	}
	return fmtImpl.Parse(sliceReader(header))
}
