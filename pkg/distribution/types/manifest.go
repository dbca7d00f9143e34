package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HashAlgorithm names the digest algorithm a manifest was built with.
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
	BLAKE3 HashAlgorithm = "blake3"
)

// Shard describes one fixed-size, content-addressed slice of a model's
// tensor-data region. Filename follows "shard_NNNNN.bin" (five-digit
// zero-padded); HashHex is a 64-character lowercase hex digest of the full
// shard body; Offset is the prefix-sum of all prior shard sizes.
type Shard struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	HashHex  string `json:"hash"`
	Offset   int64  `json:"offset"`
}

// shardWire accepts the aliased field names the downloader may encounter
// from a manifest produced elsewhere: fileName<->filename, blake3<->hash.
type shardWire struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Hash     string `json:"hash"`
	Blake3   string `json:"blake3"`
	Offset   int64  `json:"offset"`
}

func (s Shard) MarshalJSON() ([]byte, error) {
	return json.Marshal(shardWire{
		Index:    s.Index,
		Filename: s.Filename,
		Size:     s.Size,
		Hash:     s.HashHex,
		Offset:   s.Offset,
	})
}

func (s *Shard) UnmarshalJSON(data []byte) error {
	var w shardWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.Index = w.Index
	s.Filename = w.Filename
	if s.Filename == "" {
		s.Filename = w.FileName
	}
	s.Size = w.Size
	s.HashHex = w.Hash
	if s.HashHex == "" {
		s.HashHex = w.Blake3
	}
	s.Offset = w.Offset
	return nil
}

// ShardFilename formats the canonical five-digit zero-padded shard filename.
func ShardFilename(index int) string {
	return fmt.Sprintf("shard_%05d.bin", index)
}

// TokenizerRef directs the downloader to also fetch a companion vocabulary
// file. File is advisory: the manifest schema carries no hash for it, so a
// failed tokenizer fetch does not fail the overall download.
type TokenizerRef struct {
	Type string `json:"type"`
	File string `json:"file,omitempty"`
}

// Manifest is the single JSON record describing a model: architecture,
// shard layout with hashes, and the tensor-to-location map.
type Manifest struct {
	Version       int                       `json:"version"`
	ModelID       string                    `json:"modelId"`
	ModelType     string                    `json:"modelType"`
	Quantization  DType                     `json:"quantization"`
	HashAlgorithm HashAlgorithm             `json:"hashAlgorithm"`
	Architecture  Architecture              `json:"architecture"`
	MoEConfig     *MoEConfig                `json:"moeConfig"`
	Shards        []Shard                   `json:"shards"`
	Tensors       map[string]TensorLocation `json:"tensors"`
	TotalSize     int64                     `json:"totalSize"`
	FullHash      string                    `json:"fullHash,omitempty"`
	Metadata      map[string]string         `json:"metadata"`
	Tokenizer     *TokenizerRef             `json:"tokenizer,omitempty"`
}

// manifestWire mirrors Manifest but lets version and architecture arrive in
// either their strict or loosely-typed on-disk shapes.
type manifestWire struct {
	Version       json.RawMessage           `json:"version"`
	ModelID       string                    `json:"modelId"`
	ModelType     string                    `json:"modelType"`
	Quantization  DType                     `json:"quantization"`
	HashAlgorithm HashAlgorithm             `json:"hashAlgorithm"`
	Architecture  json.RawMessage           `json:"architecture"`
	MoEConfig     *MoEConfig                `json:"moeConfig"`
	Shards        []Shard                   `json:"shards"`
	Tensors       map[string]TensorLocation `json:"tensors"`
	TotalSize     int64                     `json:"totalSize"`
	FullHash      string                    `json:"fullHash,omitempty"`
	Metadata      map[string]string         `json:"metadata"`
	Tokenizer     *TokenizerRef             `json:"tokenizer,omitempty"`
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	versionJSON, err := json.Marshal(m.Version)
	if err != nil {
		return nil, err
	}
	archJSON, err := json.Marshal(m.Architecture)
	if err != nil {
		return nil, err
	}
	return json.Marshal(manifestWire{
		Version:       versionJSON,
		ModelID:       m.ModelID,
		ModelType:     m.ModelType,
		Quantization:  m.Quantization,
		HashAlgorithm: m.HashAlgorithm,
		Architecture:  archJSON,
		MoEConfig:     m.MoEConfig,
		Shards:        m.Shards,
		Tensors:       m.Tensors,
		TotalSize:     m.TotalSize,
		FullHash:      m.FullHash,
		Metadata:      m.Metadata,
		Tokenizer:     m.Tokenizer,
	})
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	var w manifestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	m.ModelID = w.ModelID
	m.ModelType = w.ModelType
	m.Quantization = w.Quantization
	m.HashAlgorithm = w.HashAlgorithm
	m.MoEConfig = w.MoEConfig
	m.Shards = w.Shards
	m.Tensors = w.Tensors
	m.TotalSize = w.TotalSize
	m.FullHash = w.FullHash
	m.Metadata = w.Metadata
	m.Tokenizer = w.Tokenizer

	if len(w.Version) > 0 {
		var asInt int
		if err := json.Unmarshal(w.Version, &asInt); err == nil {
			m.Version = asInt
		} else {
			var asStr string
			if err := json.Unmarshal(w.Version, &asStr); err != nil {
				return fmt.Errorf("parse manifest version: %w", err)
			}
			n, err := fmt.Sscanf(asStr, "%d", &asInt)
			if err != nil || n != 1 {
				return fmt.Errorf("parse manifest version %q: not numeric", asStr)
			}
			m.Version = asInt
		}
	}

	if len(w.Architecture) > 0 {
		var asStruct Architecture
		if err := json.Unmarshal(w.Architecture, &asStruct); err == nil {
			m.Architecture = asStruct
		} else {
			var asStr string
			if err := json.Unmarshal(w.Architecture, &asStr); err == nil {
				m.Architecture = Architecture{Name: asStr}
			}
		}
	}
	return nil
}

// Validate checks the manifest-level invariants (I1, I6's model_id shape,
// and the shard-existence rule for tensor locations).
func (m Manifest) Validate() error {
	if m.ModelID == "" {
		return fmt.Errorf("manifest: empty modelId")
	}
	if len(m.ModelID) > 64 || strings.HasPrefix(m.ModelID, "-") || strings.HasSuffix(m.ModelID, "-") ||
		strings.Contains(m.ModelID, "--") || strings.TrimLeft(m.ModelID, "abcdefghijklmnopqrstuvwxyz0123456789_-") != "" {
		return fmt.Errorf("manifest: modelId %q is not a filesystem-safe slug", m.ModelID)
	}
	var offset int64
	for i, s := range m.Shards {
		if s.Index != i {
			return fmt.Errorf("manifest: shard %d has index %d", i, s.Index)
		}
		if s.Offset != offset {
			return fmt.Errorf("manifest: shard %d offset %d, want %d", i, s.Offset, offset)
		}
		offset += s.Size
	}
	if offset != m.TotalSize {
		return fmt.Errorf("manifest: sum of shard sizes %d != totalSize %d", offset, m.TotalSize)
	}
	for name, loc := range m.Tensors {
		if err := loc.Validate(); err != nil {
			return fmt.Errorf("manifest: tensor %q: %w", name, err)
		}
		shardsUsed := loc.Spans
		if !loc.IsMultiShard() {
			shardsUsed = []Span{{Shard: *loc.Shard}}
		}
		for _, sp := range shardsUsed {
			if sp.Shard < 0 || sp.Shard >= len(m.Shards) {
				return fmt.Errorf("manifest: tensor %q references shard %d, have %d shards", name, sp.Shard, len(m.Shards))
			}
		}
	}
	return nil
}
