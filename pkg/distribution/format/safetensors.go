package format

import (
	"io"

	"github.com/clocksmith/doppler/pkg/distribution/internal/safetensors"
	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// sFormat implements Format for the JSON-framed binary container (Format S).
type sFormat struct{}

func init() {
	Register(&sFormat{})
}

func (s *sFormat) Name() Name {
	return FormatS
}

func (s *sFormat) Parse(r io.Reader) (types.ParseResult, error) {
	return safetensors.Parse(r)
}
