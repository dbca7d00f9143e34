package downloader

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/clocksmith/doppler/pkg/distribution/internal/store"
	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// fakeTransport serves a fixed manifest and a set of named shard bodies from
// memory, counting how many times each filename is fetched so tests can
// assert that untouched shards are never re-requested.
type fakeTransport struct {
	manifest []byte
	shards   map[string][]byte

	mu    sync.Mutex
	calls map[string]int
}

func newFakeTransport(manifest types.Manifest) *fakeTransport {
	data, err := json.Marshal(manifest)
	if err != nil {
		panic(err)
	}
	return &fakeTransport{manifest: data, shards: map[string][]byte{}, calls: map[string]int{}}
}

func (f *fakeTransport) FetchFile(ctx context.Context, url string) ([]byte, error) {
	return f.manifest, nil
}

func (f *fakeTransport) FetchShard(ctx context.Context, baseURL, filename string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	f.calls[filename]++
	f.mu.Unlock()

	body, ok := f.shards[filename]
	if !ok {
		return nil, 0, &types.HTTPError{Status: 404, URL: baseURL + "/" + filename}
	}
	return io.NopCloser(bytes.NewReader(body)), int64(len(body)), nil
}

func (f *fakeTransport) callCount(filename string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[filename]
}

func buildTestManifest(t *testing.T, hasher store.Hasher, shardBodies [][]byte) types.Manifest {
	t.Helper()
	var shards []types.Shard
	var offset int64
	for i, body := range shardBodies {
		shards = append(shards, types.Shard{
			Index:    i,
			Filename: types.ShardFilename(i),
			Size:     int64(len(body)),
			HashHex:  hasher.Sum(body),
			Offset:   offset,
		})
		offset += int64(len(body))
	}
	return types.Manifest{
		Version:       1,
		ModelID:       "resume-model",
		ModelType:     "test",
		HashAlgorithm: types.SHA256,
		Shards:        shards,
		Tensors:       map[string]types.TensorLocation{},
		TotalSize:     offset,
		Metadata:      map[string]string{},
	}
}

func TestDownload_ResumeAfterDeletedShard(t *testing.T) {
	root := t.TempDir()
	ls, err := store.InitRoot(root)
	if err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	hasher, _ := store.ResolveHasher(types.SHA256)

	bodies := [][]byte{
		bytes.Repeat([]byte{0x01}, 16),
		bytes.Repeat([]byte{0x02}, 16),
		bytes.Repeat([]byte{0x03}, 16),
	}
	manifest := buildTestManifest(t, hasher, bodies)

	handle, err := ls.OpenModel(manifest.ModelID)
	if err != nil {
		t.Fatalf("OpenModel: %v", err)
	}
	for i, body := range bodies {
		if _, err := handle.WriteShard(hasher, i, body, false, ""); err != nil {
			t.Fatalf("seed shard %d: %v", i, err)
		}
	}
	if err := handle.DeleteShard(1); err != nil {
		t.Fatalf("delete shard 1: %v", err)
	}

	stateStore, err := OpenStateStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStateStore: %v", err)
	}
	defer stateStore.Close()
	completed := map[int]bool{0: true, 1: true, 2: true}
	if err := stateStore.Save(types.DownloadState{
		ModelID:         manifest.ModelID,
		BaseURL:         "http://fake",
		Manifest:        &manifest,
		CompletedShards: completed,
		StartedAt:       time.Now(),
		UpdatedAt:       time.Now(),
		Status:          types.DownloadPaused,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	transport := newFakeTransport(manifest)
	transport.shards[types.ShardFilename(1)] = bodies[1]

	d := New(ls, transport, stateStore)
	if err := d.Download(context.Background(), manifest.ModelID, "http://fake", nil); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if n := transport.callCount(types.ShardFilename(0)); n != 0 {
		t.Errorf("shard 0 fetched %d times, want 0", n)
	}
	if n := transport.callCount(types.ShardFilename(2)); n != 0 {
		t.Errorf("shard 2 fetched %d times, want 0", n)
	}
	if n := transport.callCount(types.ShardFilename(1)); n != 1 {
		t.Errorf("shard 1 fetched %d times, want 1", n)
	}
	if !handle.ShardExists(1) {
		t.Error("shard 1 missing after resume")
	}
}

func TestDownload_CorruptShardHealing(t *testing.T) {
	root := t.TempDir()
	ls, err := store.InitRoot(root)
	if err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	hasher, _ := store.ResolveHasher(types.SHA256)

	bodies := [][]byte{
		bytes.Repeat([]byte{0xAA}, 16),
		bytes.Repeat([]byte{0xBB}, 16),
	}
	manifest := buildTestManifest(t, hasher, bodies)

	handle, err := ls.OpenModel(manifest.ModelID)
	if err != nil {
		t.Fatalf("OpenModel: %v", err)
	}
	for i, body := range bodies {
		if _, err := handle.WriteShard(hasher, i, body, false, ""); err != nil {
			t.Fatalf("seed shard %d: %v", i, err)
		}
	}
	// Corrupt shard 0 on disk after the fact.
	corrupt := append([]byte(nil), bodies[0]...)
	corrupt[0] ^= 0xFF
	if _, err := handle.WriteShard(hasher, 0, corrupt, false, ""); err != nil {
		t.Fatalf("corrupt shard 0: %v", err)
	}

	stateStore, err := OpenStateStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStateStore: %v", err)
	}
	defer stateStore.Close()
	if err := stateStore.Save(types.DownloadState{
		ModelID:         manifest.ModelID,
		BaseURL:         "http://fake",
		Manifest:        &manifest,
		CompletedShards: map[int]bool{0: true, 1: true},
		StartedAt:       time.Now(),
		UpdatedAt:       time.Now(),
		Status:          types.DownloadPaused,
	}); err != nil {
		t.Fatalf("seed state: %v", err)
	}

	transport := newFakeTransport(manifest)
	transport.shards[types.ShardFilename(0)] = bodies[0]

	d := New(ls, transport, stateStore)
	if err := d.Download(context.Background(), manifest.ModelID, "http://fake", nil); err != nil {
		t.Fatalf("Download: %v", err)
	}

	if n := transport.callCount(types.ShardFilename(0)); n != 1 {
		t.Errorf("shard 0 fetched %d times, want 1", n)
	}
	if n := transport.callCount(types.ShardFilename(1)); n != 0 {
		t.Errorf("shard 1 fetched %d times, want 0", n)
	}
	data, err := handle.LoadShard(hasher, 0, true, manifest.Shards[0].HashHex)
	if err != nil {
		t.Fatalf("LoadShard after healing: %v", err)
	}
	if !bytes.Equal(data, bodies[0]) {
		t.Error("shard 0 not healed to original content")
	}
}

func TestDownload_RejectsConcurrentSameModel(t *testing.T) {
	root := t.TempDir()
	ls, err := store.InitRoot(root)
	if err != nil {
		t.Fatalf("InitRoot: %v", err)
	}
	stateStore, err := OpenStateStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStateStore: %v", err)
	}
	defer stateStore.Close()

	d := New(ls, newFakeTransport(types.Manifest{}), stateStore)
	if err := d.jobs.acquire("busy-model"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer d.jobs.release("busy-model")

	err = d.Download(context.Background(), "busy-model", "http://fake", nil)
	if _, ok := err.(*types.AlreadyInProgressError); !ok {
		t.Fatalf("expected AlreadyInProgressError, got %v", err)
	}
}
