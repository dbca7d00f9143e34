package commands

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

func convertTinyModel(t *testing.T) (outputDir string) {
	t.Helper()
	header := `{"w":{"dtype":"F32","shape":[2,2],"data_offsets":[0,16]}}`
	body := make([]byte, 16)
	data := buildSafetensorsFile(t, header, body)

	inputDir := t.TempDir()
	input := filepath.Join(inputDir, "model.safetensors")
	if err := os.WriteFile(input, data, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	outputDir = t.TempDir()

	cmd := newConvertCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetContext(context.Background())
	if err := runConvert(cmd, input, outputDir); err != nil {
		t.Fatalf("runConvert: %v", err)
	}
	return outputDir
}

func TestRunVerify_OKOnIntactModel(t *testing.T) {
	outputDir := convertTinyModel(t)
	modelDir := filepath.Join(outputDir, "doppler-models", "model")

	cmd := newVerifyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	if err := runVerify(cmd, modelDir); err != nil {
		t.Fatalf("runVerify: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("OK:")) {
		t.Errorf("expected an OK summary line, got %q", out.String())
	}
}

func TestRunVerify_ReportsMissingShard(t *testing.T) {
	outputDir := convertTinyModel(t)
	modelDir := filepath.Join(outputDir, "doppler-models", "model")

	if err := os.Remove(filepath.Join(modelDir, "shard_00000.bin")); err != nil {
		t.Fatalf("remove shard: %v", err)
	}

	cmd := newVerifyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runVerify(cmd, modelDir)
	if err == nil {
		t.Fatalf("expected an integrity error for a missing shard")
	}
	var integrity *integrityFailure
	if !errors.As(err, &integrity) {
		t.Errorf("err type = %T, want *integrityFailure", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("MISSING shard 0")) {
		t.Errorf("expected a MISSING shard 0 line, got %q", out.String())
	}
	if exitCodeFor(err) != ExitIntegrity {
		t.Errorf("exitCodeFor = %d, want %d", exitCodeFor(err), ExitIntegrity)
	}
}

func TestRunVerify_ReportsCorruptShard(t *testing.T) {
	outputDir := convertTinyModel(t)
	modelDir := filepath.Join(outputDir, "doppler-models", "model")

	shardPath := filepath.Join(modelDir, "shard_00000.bin")
	if err := os.WriteFile(shardPath, []byte("corrupted!!!!!!!"), 0o644); err != nil {
		t.Fatalf("corrupt shard: %v", err)
	}

	cmd := newVerifyCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)

	err := runVerify(cmd, modelDir)
	if err == nil {
		t.Fatalf("expected an integrity error for a corrupt shard")
	}
	if exitCodeFor(err) != ExitIntegrity {
		t.Errorf("exitCodeFor = %d, want %d", exitCodeFor(err), ExitIntegrity)
	}
	if !bytes.Contains(out.Bytes(), []byte("CORRUPT shard 0")) {
		t.Errorf("expected a CORRUPT shard 0 line, got %q", out.String())
	}
}

func TestRunVerify_UnknownModelIsIOError(t *testing.T) {
	root := t.TempDir()
	cmd := newVerifyCmd()
	cmd.SetOut(&bytes.Buffer{})

	err := runVerify(cmd, filepath.Join(root, "doppler-models", "nope"))
	if err == nil {
		t.Fatalf("expected an error for a nonexistent model directory")
	}
	var manifestInvalid *types.ManifestInvalidError
	var integrity *integrityFailure
	if errors.As(err, &manifestInvalid) || errors.As(err, &integrity) {
		t.Errorf("expected a plain I/O error, not %T", err)
	}
}
