package format

import (
	"io"

	"github.com/clocksmith/doppler/pkg/distribution/internal/gguf"
	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// gFormat implements Format for the tagged-binary container (Format G).
type gFormat struct{}

func init() {
	Register(&gFormat{})
}

func (g *gFormat) Name() Name {
	return FormatG
}

func (g *gFormat) Parse(r io.Reader) (types.ParseResult, error) {
	return gguf.Parse(r)
}

// ParsePath satisfies PathParser, enriching the decode with
// gguf-parser-go's own reading of the file's metadata section.
func (g *gFormat) ParsePath(path string) (types.ParseResult, error) {
	return gguf.ParseFile(path)
}
