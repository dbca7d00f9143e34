package safetensors

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

func TestParse_SingleTensor(t *testing.T) {
	header := []byte(`{"w":{"dtype":"F32","shape":[2,2],"data_offsets":[0,16]}}`)

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.Write(header)

	result, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Descriptors) != 1 {
		t.Fatalf("descriptors = %d, want 1", len(result.Descriptors))
	}
	d := result.Descriptors[0]
	if d.Name != "w" || d.DType != types.F32 || d.ByteSize != 16 {
		t.Errorf("descriptor = %+v", d)
	}
	if d.ByteOffset != 0 {
		t.Errorf("ByteOffset = %d, want 0 (relative to tensor-data origin)", d.ByteOffset)
	}
	wantOrigin := int64(8 + len(header))
	if result.TensorDataOrigin != wantOrigin {
		t.Errorf("TensorDataOrigin = %d, want %d", result.TensorDataOrigin, wantOrigin)
	}
}

func TestParse_HeaderTooLarge(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(headerSizeLimit+1))
	_, err := Parse(&buf)
	if _, ok := err.(*types.HeaderTooLargeError); !ok {
		t.Fatalf("expected HeaderTooLargeError, got %v", err)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	header := []byte(`{not json`)
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.Write(header)
	_, err := Parse(&buf)
	if _, ok := err.(*types.InvalidJSONError); !ok {
		t.Fatalf("expected InvalidJSONError, got %v", err)
	}
}

func TestParse_MetadataSkipped(t *testing.T) {
	header := []byte(`{"__metadata__":{"architecture":"llama"},"w":{"dtype":"F16","shape":[4],"data_offsets":[0,8]}}`)
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint64(len(header)))
	buf.Write(header)

	result, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if result.Architecture.Name != "llama" {
		t.Errorf("Architecture.Name = %q, want llama", result.Architecture.Name)
	}
	if len(result.Descriptors) != 1 {
		t.Fatalf("descriptors = %d, want 1", len(result.Descriptors))
	}
}
