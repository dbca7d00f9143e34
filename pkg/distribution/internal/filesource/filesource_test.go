package filesource

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFile_SliceAndStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.bin")
	data := []byte("0123456789abcdef")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	f, err := Open(path)
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), f.Size())
	require.Equal(t, path, f.Name())

	slice, err := f.Slice(4, 10)
	require.NoError(t, err)
	require.Equal(t, "456789", string(slice))

	rc, err := f.Stream(context.Background(), 8)
	require.NoError(t, err)
	defer rc.Close()
	rest, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "89abcdef", string(rest))
}

func TestFile_StreamHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "weights.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	f, err := Open(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rc, err := f.Stream(ctx, 0)
	require.NoError(t, err)
	defer rc.Close()

	_, err = rc.Read(make([]byte, 4))
	require.Error(t, err)
}
