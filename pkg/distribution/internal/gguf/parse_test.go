package gguf

import (
	"bytes"
	"testing"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

func TestParse_MinimalHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("GGUF")
	buf.Write([]byte{0x03, 0x00, 0x00, 0x00}) // version 3
	buf.Write(make([]byte, 8))                 // tensor count 0
	buf.Write(make([]byte, 8))                 // metadata count 0
	// 24 bytes consumed so far; pad to 32-byte alignment.
	buf.Write(make([]byte, 8))

	result, err := Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(result.Descriptors) != 0 {
		t.Errorf("descriptors = %d, want 0", len(result.Descriptors))
	}
	if result.TensorDataOrigin != 32 {
		t.Errorf("TensorDataOrigin = %d, want 32", result.TensorDataOrigin)
	}
}

func TestParse_BadMagic(t *testing.T) {
	buf := bytes.NewBufferString("NOPE0000")
	_, err := Parse(buf)
	var badMagic *types.BadMagicError
	if !asBadMagic(err, &badMagic) {
		t.Fatalf("expected BadMagicError, got %v", err)
	}
}

func asBadMagic(err error, target **types.BadMagicError) bool {
	e, ok := err.(*types.BadMagicError)
	if ok {
		*target = e
	}
	return ok
}

func TestParse_UnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("GGUF")
	buf.Write([]byte{0x05, 0x00, 0x00, 0x00})
	_, err := Parse(&buf)
	if _, ok := err.(*types.UnsupportedVersionError); !ok {
		t.Fatalf("expected UnsupportedVersionError, got %v", err)
	}
}

func TestAlignUp(t *testing.T) {
	cases := []struct{ n, align, want int64 }{
		{0, 32, 0},
		{20, 32, 32},
		{32, 32, 32},
		{33, 32, 64},
	}
	for _, c := range cases {
		if got := alignUp(c.n, c.align); got != c.want {
			t.Errorf("alignUp(%d, %d) = %d, want %d", c.n, c.align, got, c.want)
		}
	}
}
