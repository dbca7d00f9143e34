package store

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// WriteShard writes data as shard index, truncating any existing file via
// an incomplete-file-then-rename sequence so a crash mid-write never
// leaves a partial shard visible under its final name. When verify is
// true, the buffer is hashed with hasher and compared to expectedHash; on
// mismatch the just-written file is deleted and HashMismatchError is
// returned. The computed digest is returned on success (empty if
// unverified).
func (h *ModelHandle) WriteShard(hasher Hasher, index int, data []byte, verify bool, expectedHash string) (string, error) {
	if err := h.checkQuota(int64(len(data))); err != nil {
		return "", err
	}

	finalPath := h.shardPath(index)
	incomplete := incompletePath(finalPath)

	f, err := createFile(incomplete)
	if err != nil {
		return "", fmt.Errorf("create shard %d: %w", index, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(incomplete)
		return "", fmt.Errorf("write shard %d: %w", index, err)
	}
	f.Close()

	var digest string
	if verify {
		digest = hasher.Sum(data)
		if digest != expectedHash {
			os.Remove(incomplete)
			return "", &types.HashMismatchError{Index: index, Expected: expectedHash, Actual: digest}
		}
	}

	if err := os.Rename(incomplete, finalPath); err != nil {
		return "", fmt.Errorf("finalize shard %d: %w", index, err)
	}
	return digest, nil
}

// checkQuota rejects a write that would exceed the filesystem's reported
// free space before any bytes hit disk, per the per-write quota contract
// (spec §4.B). Best-effort: a platform where statfs is unavailable does
// not block the write, since the once-per-job preflight check already
// covers the common case.
func (h *ModelHandle) checkQuota(need int64) error {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(h.dir, &stat); err != nil {
		return nil
	}
	available := int64(stat.Bavail) * int64(stat.Bsize)
	if available < need {
		return &types.QuotaExceededError{Required: need, Available: available}
	}
	return nil
}

// LoadShard reads the entirety of shard index. If verify is true, the
// bytes are hashed with hasher and compared to expectedHash.
func (h *ModelHandle) LoadShard(hasher Hasher, index int, verify bool, expectedHash string) ([]byte, error) {
	path := h.shardPath(index)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.ShardNotFoundError{Index: index}
		}
		return nil, fmt.Errorf("read shard %d: %w", index, err)
	}
	if verify {
		digest := hasher.Sum(data)
		if digest != expectedHash {
			return nil, &types.HashMismatchError{Index: index, Expected: expectedHash, Actual: digest}
		}
	}
	return data, nil
}

// LoadShardRange reads a bounded sub-range [offset, offset+length) of
// shard index. The underlying read is aligned to a 4096-byte boundary:
// offset rounds down, the read length rounds up so the boundary read is a
// multiple of the alignment, and the returned slice restores the
// caller-requested window.
func (h *ModelHandle) LoadShardRange(index int, offset, length int64) ([]byte, error) {
	path := h.shardPath(index)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &types.ShardNotFoundError{Index: index}
		}
		return nil, fmt.Errorf("open shard %d: %w", index, err)
	}
	defer f.Close()

	alignedOffset := (offset / types.Alignment) * types.Alignment
	skip := offset - alignedOffset
	alignedEnd := alignUp(offset+length, types.Alignment)
	alignedLen := alignedEnd - alignedOffset

	buf := make([]byte, alignedLen)
	n, err := f.ReadAt(buf, alignedOffset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read shard %d range: %w", index, err)
	}
	buf = buf[:n]

	end := skip + length
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}
	if skip > int64(len(buf)) {
		skip = int64(len(buf))
	}
	return bytes.Clone(buf[skip:end]), nil
}

func alignUp(n, align int64) int64 {
	if rem := n % align; rem != 0 {
		return n + (align - rem)
	}
	return n
}

// ShardExists reports whether shard index's final (non-incomplete) file is
// present.
func (h *ModelHandle) ShardExists(index int) bool {
	_, err := os.Stat(h.shardPath(index))
	return err == nil
}

// DeleteShard removes shard index's file, if present.
func (h *ModelHandle) DeleteShard(index int) error {
	err := os.Remove(h.shardPath(index))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete shard %d: %w", index, err)
	}
	return nil
}
