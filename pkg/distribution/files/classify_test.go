package files

import (
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     FileType
	}{
		{"format-g file", "model.gguf", FileTypeFormatG},
		{"format-g uppercase", "MODEL.GGUF", FileTypeFormatG},
		{"format-g with path", "/path/to/model.gguf", FileTypeFormatG},
		{"format-g shard", "model-00001-of-00015.gguf", FileTypeFormatG},

		{"format-s file", "model.safetensors", FileTypeFormatS},
		{"format-s uppercase", "MODEL.SAFETENSORS", FileTypeFormatS},
		{"format-s with path", "/path/to/model.safetensors", FileTypeFormatS},
		{"format-s shard", "model-00001-of-00003.safetensors", FileTypeFormatS},

		{"jinja template", "template.jinja", FileTypeChatTemplate},
		{"jinja uppercase", "TEMPLATE.JINJA", FileTypeChatTemplate},
		{"chat_template file", "chat_template.txt", FileTypeChatTemplate},
		{"chat_template json", "chat_template.json", FileTypeChatTemplate},

		{"tokenizer model", "tokenizer.model", FileTypeTokenizer},
		{"tokenizer model uppercase", "TOKENIZER.MODEL", FileTypeTokenizer},
		{"tokenizer json", "tokenizer.json", FileTypeTokenizer},
		{"tokenizer config", "tokenizer_config.json", FileTypeTokenizer},

		{"license file", "LICENSE", FileTypeLicense},
		{"license md", "LICENSE.md", FileTypeLicense},
		{"license txt", "license.txt", FileTypeLicense},
		{"licence uk", "LICENCE", FileTypeLicense},
		{"copying", "COPYING", FileTypeLicense},
		{"notice", "NOTICE", FileTypeLicense},

		{"unknown bin", "weirdfile.bin", FileTypeUnknown},
		{"unknown py", "script.py", FileTypeUnknown},
		{"unknown empty", "", FileTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.filename)
			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.filename, got, tt.want)
			}
		})
	}
}

func TestFileTypeString(t *testing.T) {
	tests := []struct {
		ft   FileType
		want string
	}{
		{FileTypeFormatG, "format-g"},
		{FileTypeFormatS, "format-s"},
		{FileTypeTokenizer, "tokenizer"},
		{FileTypeLicense, "license"},
		{FileTypeChatTemplate, "chat_template"},
		{FileTypeUnknown, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.ft.String()
			if got != tt.want {
				t.Errorf("FileType.String() = %q, want %q", got, tt.want)
			}
		})
	}
}
