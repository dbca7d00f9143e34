package types

// TensorDescriptor describes one tensor as declared by a source container,
// before any sharding has taken place. ByteOffset is relative to the
// source's tensor-data origin (0 at the first byte of tensor bulk data):
// it is monotonic non-decreasing across a parsed descriptor list, and
// tensors never overlap.
type TensorDescriptor struct {
	Name       string  `json:"name"`
	Shape      []int64 `json:"shape"`
	DType      DType   `json:"dtype"`
	ByteSize   int64   `json:"byteSize"`
	ByteOffset int64   `json:"byteOffset"`
}

// Architecture captures the layer/head/vocab geometry extracted from a
// source container's metadata. Fields that a given format does not declare
// are left at their zero value; anything the common fields don't cover
// lives in Extra.
type Architecture struct {
	Name            string            `json:"name,omitempty"`
	LayerCount      int               `json:"layerCount,omitempty"`
	HeadCount       int               `json:"headCount,omitempty"`
	HeadCountKV     int               `json:"headCountKv,omitempty"`
	EmbeddingLength int               `json:"embeddingLength,omitempty"`
	ContextLength   int               `json:"contextLength,omitempty"`
	VocabSize       int               `json:"vocabSize,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// MoEConfig is present iff the source container declares an expert count;
// its fields are copied through without semantic interpretation.
type MoEConfig struct {
	ExpertCount      int `json:"expertCount"`
	ExpertsPerToken  int `json:"expertsPerToken,omitempty"`
}

// ParseResult is the common output of both container parsers (format G and
// format S): an ordered descriptor list plus the metadata needed to build a
// manifest, and the absolute offset in the source stream at which raw
// tensor bytes begin.
type ParseResult struct {
	Descriptors      []TensorDescriptor
	Architecture     Architecture
	Quantization     DType
	MoE              *MoEConfig
	TensorDataOrigin int64
	ModelType        string
}
