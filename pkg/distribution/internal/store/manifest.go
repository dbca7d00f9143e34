package store

import (
	"encoding/json"
	"fmt"
	"os"
)

// SaveManifest serializes m as pretty (two-space indented) JSON and writes
// it via the same incomplete-file-then-rename sequence as shard writes.
func (h *ModelHandle) SaveManifest(m any) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	final := h.manifestPath()
	incomplete := incompletePath(final)
	f, err := createFile(incomplete)
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(incomplete)
		return fmt.Errorf("write manifest: %w", err)
	}
	f.Close()
	if err := os.Rename(incomplete, final); err != nil {
		return fmt.Errorf("finalize manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the raw manifest JSON text.
func (h *ModelHandle) LoadManifest() ([]byte, error) {
	data, err := os.ReadFile(h.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return data, nil
}

// SaveTokenizer writes the optional bundled vocabulary file verbatim.
func (h *ModelHandle) SaveTokenizer(data []byte) error {
	if err := os.WriteFile(h.tokenizerPath(), data, 0o644); err != nil {
		return fmt.Errorf("save tokenizer: %w", err)
	}
	return nil
}

// LoadTokenizer reads the tokenizer file, returning (nil, nil) if none was
// bundled.
func (h *ModelHandle) LoadTokenizer() ([]byte, error) {
	data, err := os.ReadFile(h.tokenizerPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return data, nil
}
