package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/clocksmith/doppler/pkg/distribution/types"
	"lukechampine.com/blake3"
)

// Hasher is the capability interface the store resolves once at init: a
// digest algorithm plus both one-shot and incremental-streaming entry
// points. Modeled after the duck-typed "pick BLAKE3 if available, else
// SHA-256" selection the source performs ad hoc; here it is a fixed choice
// made once and never silently downgraded.
type Hasher interface {
	Algorithm() types.HashAlgorithm
	Sum(data []byte) string
	New() hash.Hash
}

type sha256Hasher struct{}

func (sha256Hasher) Algorithm() types.HashAlgorithm { return types.SHA256 }

func (sha256Hasher) Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (sha256Hasher) New() hash.Hash { return sha256.New() }

type blake3Hasher struct{}

func (blake3Hasher) Algorithm() types.HashAlgorithm { return types.BLAKE3 }

func (blake3Hasher) Sum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (blake3Hasher) New() hash.Hash { return blake3.New(32, nil) }

// ResolveHasher returns the Hasher for the requested algorithm. It fails
// loudly rather than falling back, per the manifest's hash_algorithm
// contract: a manifest that requires BLAKE3 must never be silently
// downgraded to SHA-256.
func ResolveHasher(algo types.HashAlgorithm) (Hasher, error) {
	switch algo {
	case types.SHA256, "":
		return sha256Hasher{}, nil
	case types.BLAKE3:
		return blake3Hasher{}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algo)
	}
}

// SumReader computes h's digest over r using a true incremental streaming
// digest, never buffering the full content in memory. This is the
// conforming replacement for a buffer-then-hash fallback.
func SumReader(h Hasher, r io.Reader) (string, error) {
	sink := h.New()
	if _, err := io.Copy(sink, r); err != nil {
		return "", fmt.Errorf("stream hash: %w", err)
	}
	return hex.EncodeToString(sink.Sum(nil)), nil
}
