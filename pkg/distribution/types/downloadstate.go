package types

import (
	"encoding/json"
	"sort"
	"time"
)

// DownloadStatus tracks where a download sits in its lifecycle, persisted
// alongside the partial model directory so a restart can resume it.
type DownloadStatus string

const (
	DownloadPending   DownloadStatus = "pending"
	DownloadRunning   DownloadStatus = "running"
	DownloadPaused    DownloadStatus = "paused"
	DownloadCompleted DownloadStatus = "completed"
	DownloadFailed    DownloadStatus = "failed"
)

// DownloadState is the persisted record of an in-progress or interrupted
// download, used on resume to reconcile which shards still need fetching.
type DownloadState struct {
	ModelID         string         `json:"modelId"`
	BaseURL         string         `json:"baseUrl"`
	Manifest        *Manifest      `json:"manifest,omitempty"`
	CompletedShards map[int]bool   `json:"completedShards"`
	StartedAt       time.Time      `json:"startedAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Status          DownloadStatus `json:"status"`
	Error           string         `json:"error,omitempty"`
}

// Pending returns the shard indices not yet marked complete, in ascending
// order, given the manifest's shard count.
func (s *DownloadState) Pending() []int {
	if s.Manifest == nil {
		return nil
	}
	var pending []int
	for i := range s.Manifest.Shards {
		if !s.CompletedShards[i] {
			pending = append(pending, i)
		}
	}
	return pending
}

// MarkComplete records shard i as fetched and verified.
func (s *DownloadState) MarkComplete(i int) {
	if s.CompletedShards == nil {
		s.CompletedShards = make(map[int]bool)
	}
	s.CompletedShards[i] = true
}

// downloadStateWire mirrors DownloadState but serializes completedShards as
// a sorted array of indices rather than an object keyed by stringified int,
// matching the sidecar's on-disk shape.
type downloadStateWire struct {
	ModelID         string         `json:"modelId"`
	BaseURL         string         `json:"baseUrl"`
	Manifest        *Manifest      `json:"manifest,omitempty"`
	CompletedShards []int          `json:"completedShards"`
	StartedAt       time.Time      `json:"startedAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Status          DownloadStatus `json:"status"`
	Error           string         `json:"error,omitempty"`
}

func (s DownloadState) MarshalJSON() ([]byte, error) {
	completed := make([]int, 0, len(s.CompletedShards))
	for i, done := range s.CompletedShards {
		if done {
			completed = append(completed, i)
		}
	}
	sort.Ints(completed)
	return json.Marshal(downloadStateWire{
		ModelID:         s.ModelID,
		BaseURL:         s.BaseURL,
		Manifest:        s.Manifest,
		CompletedShards: completed,
		StartedAt:       s.StartedAt,
		UpdatedAt:       s.UpdatedAt,
		Status:          s.Status,
		Error:           s.Error,
	})
}

func (s *DownloadState) UnmarshalJSON(data []byte) error {
	var w downloadStateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	s.ModelID = w.ModelID
	s.BaseURL = w.BaseURL
	s.Manifest = w.Manifest
	s.StartedAt = w.StartedAt
	s.UpdatedAt = w.UpdatedAt
	s.Status = w.Status
	s.Error = w.Error
	s.CompletedShards = make(map[int]bool, len(w.CompletedShards))
	for _, i := range w.CompletedShards {
		s.CompletedShards[i] = true
	}
	return nil
}
