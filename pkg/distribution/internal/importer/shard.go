package importer

import (
	"context"
	"fmt"
	"io"

	"github.com/clocksmith/doppler/pkg/distribution/internal/progress"
	"github.com/clocksmith/doppler/pkg/distribution/internal/store"
	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// shardTensorData slices the tensor-data region of src into fixed-size
// shards, writing each as it fills, then derives every descriptor's
// shard-relative location from the finished shard layout.
func shardTensorData(ctx context.Context, handle *store.ModelHandle, hasher store.Hasher, src Source, parsed types.ParseResult, modelID string, sink progress.Sink) ([]types.Shard, map[string]types.TensorLocation, int64, error) {
	total := src.Size() - parsed.TensorDataOrigin

	var shards []types.Shard
	var err error
	if ss, ok := src.(StreamSource); ok {
		shards, err = shardFromStream(ctx, handle, hasher, ss, parsed.TensorDataOrigin, total, modelID, sink)
	} else {
		shards, err = shardFromSlices(ctx, handle, hasher, src, parsed.TensorDataOrigin, total, modelID, sink)
	}
	if err != nil {
		return nil, nil, 0, err
	}

	locations := make(map[string]types.TensorLocation, len(parsed.Descriptors))
	for _, d := range parsed.Descriptors {
		loc, err := locationForTensor(d, len(shards))
		if err != nil {
			return nil, nil, 0, err
		}
		locations[d.Name] = loc
	}

	var totalSize int64
	for _, s := range shards {
		totalSize += s.Size
	}
	return shards, locations, totalSize, nil
}

// shardFromSlices is the non-streaming fallback: it pulls bounded slices of
// at most SHARD_SIZE directly from src, so each slice call is itself one
// shard's worth of bytes.
func shardFromSlices(ctx context.Context, handle *store.ModelHandle, hasher store.Hasher, src Source, origin, total int64, modelID string, sink progress.Sink) ([]types.Shard, error) {
	var shards []types.Shard
	var shardOffset int64
	pos := origin
	end := origin + total

	for pos < end {
		if err := ctx.Err(); err != nil {
			return nil, &types.CancelledError{Operation: "sharding"}
		}
		chunkEnd := pos + types.ShardSize
		if chunkEnd > end {
			chunkEnd = end
		}
		data, err := src.Slice(pos, chunkEnd)
		if err != nil {
			return nil, fmt.Errorf("slice tensor data [%d,%d): %w", pos, chunkEnd, err)
		}
		shard, err := finalizeShard(handle, hasher, len(shards), shardOffset, data)
		if err != nil {
			return nil, err
		}
		shards = append(shards, shard)
		shardOffset += shard.Size
		pos = chunkEnd
		sink.Report(progress.NewEvent(progress.StageSharding, modelID, shardOffset, total))
	}
	return shards, nil
}

// shardFromStream is the streaming variant: it reads ss's byte stream into a
// SHARD_SIZE write buffer, flushing a shard each time the buffer fills and
// once more for a final partial shard at EOF.
func shardFromStream(ctx context.Context, handle *store.ModelHandle, hasher store.Hasher, ss StreamSource, origin, total int64, modelID string, sink progress.Sink) ([]types.Shard, error) {
	rc, err := ss.Stream(ctx, origin)
	if err != nil {
		return nil, fmt.Errorf("open tensor data stream: %w", err)
	}
	defer rc.Close()

	var shards []types.Shard
	var shardOffset int64
	buf := make([]byte, 0, types.ShardSize)
	readChunk := make([]byte, 1<<20)

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		shard, err := finalizeShard(handle, hasher, len(shards), shardOffset, buf)
		if err != nil {
			return err
		}
		shards = append(shards, shard)
		shardOffset += shard.Size
		sink.Report(progress.NewEvent(progress.StageSharding, modelID, shardOffset, total))
		buf = buf[:0]
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, &types.CancelledError{Operation: "sharding"}
		}
		n, rerr := rc.Read(readChunk)
		remaining := readChunk[:n]
		for len(remaining) > 0 {
			space := types.ShardSize - len(buf)
			take := len(remaining)
			if take > space {
				take = space
			}
			buf = append(buf, remaining[:take]...)
			remaining = remaining[take:]
			if len(buf) == types.ShardSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, fmt.Errorf("read tensor data stream: %w", rerr)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return shards, nil
}

func finalizeShard(handle *store.ModelHandle, hasher store.Hasher, index int, offset int64, data []byte) (types.Shard, error) {
	digest := hasher.Sum(data)
	if _, err := handle.WriteShard(hasher, index, data, false, ""); err != nil {
		return types.Shard{}, fmt.Errorf("write shard %d: %w", index, err)
	}
	return types.Shard{
		Index:    index,
		Filename: types.ShardFilename(index),
		Size:     int64(len(data)),
		HashHex:  digest,
		Offset:   offset,
	}, nil
}

// locationForTensor derives d's shard-relative location from its absolute
// tensor-data-region offset, producing a single-shard location when the
// tensor fits within one shard and a span list when it crosses a boundary.
func locationForTensor(d types.TensorDescriptor, numShards int) (types.TensorLocation, error) {
	shardIdx := int(d.ByteOffset / types.ShardSize)
	offsetInShard := d.ByteOffset % types.ShardSize

	loc := types.TensorLocation{Shape: d.Shape, DType: d.DType, Size: d.ByteSize}
	if offsetInShard+d.ByteSize <= types.ShardSize {
		s := shardIdx
		loc.Shard = &s
		loc.OffsetInShard = offsetInShard
		return loc, nil
	}

	remaining := d.ByteSize
	curShard := shardIdx
	curOffset := offsetInShard
	var spans []types.Span
	for remaining > 0 {
		if curShard >= numShards {
			return types.TensorLocation{}, fmt.Errorf("tensor %q offset %d size %d exceeds %d shards", d.Name, d.ByteOffset, d.ByteSize, numShards)
		}
		avail := int64(types.ShardSize) - curOffset
		take := remaining
		if take > avail {
			take = avail
		}
		spans = append(spans, types.Span{Shard: curShard, OffsetInShard: curOffset, Size: take})
		remaining -= take
		curShard++
		curOffset = 0
	}
	loc.Spans = spans
	return loc, nil
}
