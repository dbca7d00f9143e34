// Package files classifies the files that make up a model directory: which
// container format a weight file uses, and which companion files (tokenizer,
// license, chat template) ride alongside it.
package files

import (
	"path/filepath"
	"strings"
)

// FileType is the role a file plays within a model directory.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeFormatG
	FileTypeFormatS
	FileTypeTokenizer
	FileTypeLicense
	FileTypeChatTemplate
)

func (ft FileType) String() string {
	switch ft {
	case FileTypeFormatG:
		return "format-g"
	case FileTypeFormatS:
		return "format-s"
	case FileTypeTokenizer:
		return "tokenizer"
	case FileTypeLicense:
		return "license"
	case FileTypeChatTemplate:
		return "chat_template"
	default:
		return "unknown"
	}
}

var (
	TokenizerExtensions = []string{".json", ".model", ".vocab"}
	TokenizerNames      = []string{"tokenizer.model", "tokenizer.json", "tokenizer_config.json"}
	ChatTemplateExtensions = []string{".jinja"}
	LicensePatterns        = []string{"license", "licence", "copying", "notice"}
)

// Classify determines a file's role from its name alone. Weight files (the
// two container formats) are identified by extension here; magic-byte
// sniffing of the actual header is the parsers' job, not this package's.
func Classify(path string) FileType {
	filename := filepath.Base(path)
	lower := strings.ToLower(filename)

	if strings.HasSuffix(lower, ".gguf") {
		return FileTypeFormatG
	}
	if strings.HasSuffix(lower, ".safetensors") {
		return FileTypeFormatS
	}

	for _, ext := range ChatTemplateExtensions {
		if strings.HasSuffix(lower, ext) {
			return FileTypeChatTemplate
		}
	}
	if strings.Contains(lower, "chat_template") {
		return FileTypeChatTemplate
	}

	for _, pattern := range LicensePatterns {
		if strings.Contains(lower, pattern) {
			return FileTypeLicense
		}
	}

	for _, name := range TokenizerNames {
		if strings.EqualFold(lower, name) {
			return FileTypeTokenizer
		}
	}
	if strings.Contains(lower, "tokenizer") {
		for _, ext := range TokenizerExtensions {
			if strings.HasSuffix(lower, ext) {
				return FileTypeTokenizer
			}
		}
	}

	return FileTypeUnknown
}
