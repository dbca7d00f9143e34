// Package types defines the wire-level data model shared by the container
// parsers, the shard store, the importer, and the downloader: tensor
// descriptors, dtypes, tensor locations, and the model manifest.
package types

import "fmt"

// DType is a closed tag set for tensor element types, covering the floating
// and integer types found in both container formats plus the block-quantized
// families used by GGUF-style weights.
type DType string

const (
	F32  DType = "F32"
	F16  DType = "F16"
	BF16 DType = "BF16"
	F64  DType = "F64"

	I8  DType = "I8"
	I16 DType = "I16"
	I32 DType = "I32"
	I64 DType = "I64"
	U8  DType = "U8"
	U16 DType = "U16"
	U32 DType = "U32"
	U64 DType = "U64"

	BOOL DType = "BOOL"

	Q4_0 DType = "Q4_0"
	Q4_1 DType = "Q4_1"
	Q5_0 DType = "Q5_0"
	Q5_1 DType = "Q5_1"
	Q8_0 DType = "Q8_0"
	Q8_1 DType = "Q8_1"

	Q2_K DType = "Q2_K"
	Q3_K DType = "Q3_K"
	Q4_K DType = "Q4_K"
	Q5_K DType = "Q5_K"
	Q6_K DType = "Q6_K"
	Q8_K DType = "Q8_K"

	IQ1_S   DType = "IQ1_S"
	IQ2_XXS DType = "IQ2_XXS"
	IQ2_XS  DType = "IQ2_XS"
	IQ2_S   DType = "IQ2_S"
	IQ3_XXS DType = "IQ3_XXS"
	IQ3_S   DType = "IQ3_S"
	IQ4_NL  DType = "IQ4_NL"
	IQ4_XS  DType = "IQ4_XS"
)

// blockLayout describes the quantization block geometry of a dtype: how many
// elements are packed per block and how many bytes that block occupies on
// disk. Non-quantized types use a block size of 1 element per "block" whose
// byte size is the plain element size.
type blockLayout struct {
	blockSize      int
	bytesPerBlock  int
	validForSimple bool // true for plain (non-block) numeric types
}

var layouts = map[DType]blockLayout{
	F32:  {1, 4, true},
	F16:  {1, 2, true},
	BF16: {1, 2, true},
	F64:  {1, 8, true},
	I8:   {1, 1, true},
	I16:  {1, 2, true},
	I32:  {1, 4, true},
	I64:  {1, 8, true},
	U8:   {1, 1, true},
	U16:  {1, 2, true},
	U32:  {1, 4, true},
	U64:  {1, 8, true},
	BOOL: {1, 1, true},

	Q4_0: {32, 18, false},
	Q4_1: {32, 20, false},
	Q5_0: {32, 22, false},
	Q5_1: {32, 24, false},
	Q8_0: {32, 34, false},
	Q8_1: {32, 36, false},

	Q2_K: {256, 84, false},
	Q3_K: {256, 110, false},
	Q4_K: {256, 144, false},
	Q5_K: {256, 176, false},
	Q6_K: {256, 210, false},
	Q8_K: {256, 292, false},

	IQ1_S:   {256, 50, false},
	IQ2_XXS: {256, 66, false},
	IQ2_XS:  {256, 74, false},
	IQ2_S:   {256, 82, false},
	IQ3_XXS: {256, 98, false},
	IQ3_S:   {256, 110, false},
	IQ4_NL:  {32, 18, false},
	IQ4_XS:  {256, 136, false},
}

// Valid reports whether dt is a recognized member of the closed tag set.
func (dt DType) Valid() bool {
	_, ok := layouts[dt]
	return ok
}

// IsQuantized reports whether dt is one of the block-quantized families.
func (dt DType) IsQuantized() bool {
	l, ok := layouts[dt]
	return ok && !l.validForSimple
}

// ByteSize computes the on-disk byte size of numElements consecutive values
// of dtype dt, applying block-quantization rounding (ceil(numElements /
// blockSize) * bytesPerBlock) for quantized families and a plain
// numElements*elementSize for everything else.
func (dt DType) ByteSize(numElements int64) (int64, error) {
	l, ok := layouts[dt]
	if !ok {
		return 0, fmt.Errorf("unknown dtype %q", dt)
	}
	if numElements < 0 {
		return 0, fmt.Errorf("negative element count %d", numElements)
	}
	if l.validForSimple {
		return numElements * int64(l.bytesPerBlock), nil
	}
	blocks := (numElements + int64(l.blockSize) - 1) / int64(l.blockSize)
	return blocks * int64(l.bytesPerBlock), nil
}

// NumElements returns the product of a shape's dimensions.
func NumElements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
