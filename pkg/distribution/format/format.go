// Package format provides a unified interface for handling the two source
// container formats. It uses the Strategy pattern to encapsulate
// format-specific header decoding while presenting a common parse result.
package format

import (
	"bufio"
	"fmt"
	"io"

	"github.com/clocksmith/doppler/pkg/distribution/files"
	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// Name identifies a container format.
type Name string

const (
	FormatG Name = "format-g"
	FormatS Name = "format-s"
)

// Format decodes one container format's header into the common ParseResult.
type Format interface {
	Name() Name
	// Parse reads a bounded header prefix from r and returns the descriptor
	// list and metadata common to both formats. It must not read tensor bulk.
	Parse(r io.Reader) (types.ParseResult, error)
}

// PathParser is an optional capability a Format implementation can provide
// when it has a richer decoder for sources backed by a real local file
// (as opposed to an opaque bounded reader). Callers that hold a Source
// whose Name() is a genuine local path should prefer this over Parse.
type PathParser interface {
	ParsePath(path string) (types.ParseResult, error)
}

var registry = make(map[Name]Format)

// Register adds a format implementation to the global registry. Called from
// each format's init().
func Register(f Format) {
	registry[f.Name()] = f
}

// Get returns the format implementation for the given name.
func Get(name Name) (Format, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown format: %s", name)
	}
	return f, nil
}

// headerMagicLen is enough bytes to distinguish the two formats: Format G's
// 4-byte magic, or Format S's 8-byte length prefix.
const headerMagicLen = 8

// DetectFromPath determines the container format from a file's extension,
// falling back to sniffing its leading bytes when the extension is absent
// or ambiguous.
func DetectFromPath(path string, open func(string) (io.ReadCloser, error)) (Format, error) {
	switch files.Classify(path) {
	case files.FileTypeFormatG:
		return Get(FormatG)
	case files.FileTypeFormatS:
		return Get(FormatS)
	}
	if open == nil {
		return nil, fmt.Errorf("unable to detect format from path: %s", path)
	}
	rc, err := open(path)
	if err != nil {
		return nil, fmt.Errorf("open for sniffing: %w", err)
	}
	defer rc.Close()
	return DetectFromReader(rc)
}

// DetectFromReader sniffs the format from a stream's leading bytes. It wraps
// r in its own bufio.Reader to peek, so the bytes it buffers are consumed
// from r.
func DetectFromReader(r io.Reader) (Format, error) {
	br := bufio.NewReaderSize(r, headerMagicLen)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("peek magic: %w", err)
	}
	if string(magic) == "GGUF" {
		return Get(FormatG)
	}
	// Format S has no magic; its header is a plausible small length prefix
	// followed by '{'. Treat anything else as Format S and let Parse fail
	// with a typed error if it is not valid JSON framing.
	return Get(FormatS)
}
