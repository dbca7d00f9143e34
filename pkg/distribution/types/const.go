package types

import "time"

// Engine-wide tunables shared by the store, importer, and downloader.
const (
	ShardSize = 67_108_864 // 64 MiB

	Alignment = 4096

	MaxRetries         = 3
	InitialRetryDelay  = 1000 * time.Millisecond
	MaxRetryDelay      = 30 * time.Second
	DefaultConcurrency = 3

	HeaderReadLimit = 10 * 1024 * 1024

	StaleIncompleteAge = 24 * time.Hour
)
