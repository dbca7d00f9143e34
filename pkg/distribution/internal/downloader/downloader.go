// Package downloader implements the resumable, bounded-concurrency shard
// fetcher: manifest retrieval, preflight, self-healing resume against a
// persisted download-state sidecar, and per-shard verified writes. It never
// issues HTTP Range requests; a shard that fails partway through is
// discarded whole and refetched from byte zero.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/clocksmith/doppler/pkg/distribution/internal/preflight"
	"github.com/clocksmith/doppler/pkg/distribution/internal/progress"
	"github.com/clocksmith/doppler/pkg/distribution/internal/store"
	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// Downloader coordinates fetches for one root store, enforcing at most one
// active job per model ID.
type Downloader struct {
	root        *store.LocalStore
	transport   Transport
	state       *StateStore
	concurrency int
	jobs        *registry
}

// Option configures a Downloader.
type Option func(*Downloader)

// WithConcurrency overrides the default bounded-concurrency fetch width.
func WithConcurrency(n int) Option {
	return func(d *Downloader) {
		if n > 0 {
			d.concurrency = n
		}
	}
}

// New builds a Downloader rooted at root, persisting resume state via state.
func New(root *store.LocalStore, transport Transport, state *StateStore, opts ...Option) *Downloader {
	d := &Downloader{
		root:        root,
		transport:   transport,
		state:       state,
		concurrency: types.DefaultConcurrency,
		jobs:        newRegistry(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Download runs the full resumable-download algorithm for modelID against
// baseURL, reporting progress to sink (may be nil). It returns nil only
// once every shard is verified on disk and the manifest is persisted
// locally. Pause is modeled as caller cancellation: cancelling ctx aborts
// in-flight fetches, persists a paused state record, and returns a
// CancelledError-wrapping error; calling Download again with the same
// modelID resumes from that record.
func (d *Downloader) Download(ctx context.Context, modelID, baseURL string, sink progress.Sink) error {
	if sink == nil {
		sink = progress.NopSink{}
	}
	if err := d.jobs.acquire(modelID); err != nil {
		return err
	}
	defer d.jobs.release(modelID)

	manifest, err := d.fetchManifest(ctx, baseURL)
	if err != nil {
		return err
	}

	if err := d.preflight(manifest); err != nil {
		return err
	}

	handle, err := d.root.OpenModel(modelID)
	if err != nil {
		return fmt.Errorf("open model directory: %w", err)
	}

	hasher, err := store.ResolveHasher(manifest.HashAlgorithm)
	if err != nil {
		return err
	}

	prior, found, err := d.state.Load(modelID)
	if err != nil {
		return err
	}
	completed := reconcile(handle, hasher, manifest, prior, found)

	now := time.Now()
	job := &jobState{
		modelID:   modelID,
		baseURL:   baseURL,
		manifest:  manifest,
		handle:    handle,
		completed: completed,
		startedAt: now,
	}
	if found {
		job.startedAt = prior.StartedAt
	}
	if err := d.persist(job, types.DownloadRunning, ""); err != nil {
		return err
	}

	tracker := progress.NewTracker(sink, modelID, manifest.TotalSize)
	if err := d.runQueue(ctx, job, hasher, tracker); err != nil {
		status := types.DownloadFailed
		var cancelled *types.CancelledError
		if errors.As(err, &cancelled) {
			status = types.DownloadPaused
		}
		d.persist(job, status, err.Error())
		return err
	}

	if err := handle.SaveManifest(manifest); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	if manifest.Tokenizer != nil {
		d.fetchTokenizer(ctx, handle, baseURL, *manifest.Tokenizer)
	}
	if err := d.state.Delete(modelID); err != nil {
		return err
	}
	sink.Report(progress.NewEvent(progress.StageComplete, modelID, manifest.TotalSize, manifest.TotalSize))
	return nil
}

func (d *Downloader) fetchManifest(ctx context.Context, baseURL string) (types.Manifest, error) {
	url := baseURL + "/manifest.json"
	var manifest types.Manifest
	for attempt := 0; ; attempt++ {
		data, err := d.transport.FetchFile(ctx, url)
		if err == nil {
			if uerr := json.Unmarshal(data, &manifest); uerr != nil {
				return types.Manifest{}, fmt.Errorf("decode manifest: %w", uerr)
			}
			if verr := manifest.Validate(); verr != nil {
				return types.Manifest{}, &types.ManifestInvalidError{Reasons: []string{verr.Error()}}
			}
			return manifest, nil
		}
		retry, delay := retryPolicy(attempt, err)
		if !retry {
			return types.Manifest{}, err
		}
		if werr := waitOrCancel(ctx, delay); werr != nil {
			return types.Manifest{}, werr
		}
	}
}

// preflight enforces the whole-job storage check up front (spec §4.E),
// before any shard is requested: it compares the manifest's total size
// against real free space on the store's root filesystem, so a download
// that can never complete fails fast with QuotaExceededError rather than
// trickling through the per-shard write check shard by shard.
func (d *Downloader) preflight(manifest types.Manifest) error {
	_, err := preflight.Check(preflight.Requirement{
		DownloadSize:  manifest.TotalSize,
		StoreRootPath: d.root.RootPath(),
	})
	return err
}

// reconcile compares a prior persisted state (if any) against what is
// actually on disk: previously-completed shards are re-verified, and any
// that are missing or hash-mismatched are deleted and requeued rather than
// trusted blindly (spec scenarios 3 and 4).
func reconcile(handle *store.ModelHandle, hasher store.Hasher, manifest types.Manifest, prior types.DownloadState, found bool) map[int]bool {
	completed := make(map[int]bool, len(manifest.Shards))
	if !found {
		return completed
	}
	for i, shard := range manifest.Shards {
		if !prior.CompletedShards[i] {
			continue
		}
		if _, err := handle.LoadShard(hasher, i, true, shard.HashHex); err != nil {
			handle.DeleteShard(i)
			continue
		}
		completed[i] = true
	}
	return completed
}

type jobState struct {
	modelID   string
	baseURL   string
	manifest  types.Manifest
	handle    *store.ModelHandle
	completed map[int]bool
	startedAt time.Time
}

func (d *Downloader) persist(job *jobState, status types.DownloadStatus, errMsg string) error {
	state := types.DownloadState{
		ModelID:         job.modelID,
		BaseURL:         job.baseURL,
		Manifest:        &job.manifest,
		CompletedShards: job.completed,
		StartedAt:       job.startedAt,
		UpdatedAt:       time.Now(),
		Status:          status,
		Error:           errMsg,
	}
	return d.state.Save(state)
}

func (d *Downloader) runQueue(ctx context.Context, job *jobState, hasher store.Hasher, tracker *progress.Tracker) error {
	var pending []int
	for i := range job.manifest.Shards {
		if !job.completed[i] {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	var mu sync.Mutex
	var failed []int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.concurrency)
	for _, index := range pending {
		index := index
		g.Go(func() error {
			if err := d.fetchShard(gctx, job, hasher, index, tracker); err != nil {
				mu.Lock()
				failed = append(failed, index)
				mu.Unlock()
				return &types.ShardFailedError{Index: index, Cause: err}
			}
			mu.Lock()
			job.completed[index] = true
			d.persist(job, types.DownloadRunning, "")
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return &types.CancelledError{Operation: "download"}
		}
		if len(failed) > 0 {
			sort.Ints(failed)
			return fmt.Errorf("%w: %w", &types.DownloadIncompleteError{FailedShards: failed}, err)
		}
		return err
	}
	return nil
}

func (d *Downloader) fetchShard(ctx context.Context, job *jobState, hasher store.Hasher, index int, tracker *progress.Tracker) error {
	shard := job.manifest.Shards[index]
	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return &types.CancelledError{Operation: "download shard"}
		}
		data, err := d.fetchOneShardBody(ctx, job.baseURL, shard, index, tracker)
		if err == nil {
			if _, werr := job.handle.WriteShard(hasher, index, data, true, shard.HashHex); werr != nil {
				if _, ok := werr.(*types.HashMismatchError); ok {
					job.handle.DeleteShard(index)
				}
				err = werr
			} else {
				return nil
			}
		}
		lastErr = err
		retry, delay := retryPolicy(attempt, err)
		if !retry {
			return lastErr
		}
		if werr := waitOrCancel(ctx, delay); werr != nil {
			return werr
		}
	}
}

func (d *Downloader) fetchOneShardBody(ctx context.Context, baseURL string, shard types.Shard, index int, tracker *progress.Tracker) ([]byte, error) {
	body, _, err := d.transport.FetchShard(ctx, baseURL, shard.Filename)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	buf := make([]byte, 0, shard.Size)
	chunk := make([]byte, 1<<20)
	for {
		if err := ctx.Err(); err != nil {
			return nil, &types.CancelledError{Operation: "download shard"}
		}
		n, rerr := body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if tracker != nil {
				tracker.Update(index, int64(len(buf)))
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return nil, &types.NetworkError{Cause: rerr, Retryable: true}
		}
	}
	return buf, nil
}

func (d *Downloader) fetchTokenizer(ctx context.Context, handle *store.ModelHandle, baseURL string, ref types.TokenizerRef) {
	if ref.File == "" {
		return
	}
	data, err := d.transport.FetchFile(ctx, baseURL+"/"+ref.File)
	if err != nil {
		return
	}
	handle.SaveTokenizer(data)
}

func waitOrCancel(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		if err := ctx.Err(); err != nil {
			return &types.CancelledError{Operation: "retry backoff"}
		}
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return &types.CancelledError{Operation: "retry backoff"}
	}
}
