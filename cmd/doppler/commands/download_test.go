package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestRunDownload_FetchesManifestAndShards(t *testing.T) {
	srcOutputDir := convertTinyModel(t)
	modelDir := filepath.Join(srcOutputDir, "doppler-models", "model")

	srv := httptest.NewServer(http.FileServer(http.Dir(modelDir)))
	defer srv.Close()

	destDir := t.TempDir()
	cmd := newDownloadCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())

	if err := runDownload(cmd, srv.URL, "model", destDir); err != nil {
		t.Fatalf("runDownload: %v", err)
	}

	if _, err := os.Stat(filepath.Join(destDir, "doppler-models", "model", "manifest.json")); err != nil {
		t.Errorf("manifest.json not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, "doppler-models", "model", "shard_00000.bin")); err != nil {
		t.Errorf("shard_00000.bin not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(destDir, ".doppler-downloads.db")); err != nil {
		t.Errorf("download-state sidecar not created: %v", err)
	}
}

func TestRunDownload_UnreachableServerIsError(t *testing.T) {
	destDir := t.TempDir()
	cmd := newDownloadCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetContext(context.Background())

	err := runDownload(cmd, "http://127.0.0.1:1", "model", destDir)
	if err == nil {
		t.Fatalf("expected an error when the origin is unreachable")
	}
}
