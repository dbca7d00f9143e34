package store

import "github.com/clocksmith/doppler/pkg/distribution/types"

// IntegrityReport categorizes every shard index named by a manifest as
// missing from disk or present with a hash mismatch.
type IntegrityReport struct {
	Missing []int
	Corrupt []int
}

// VerifyIntegrity iterates every shard index in manifest, categorizing each
// by presence then by hash match (I3).
func (h *ModelHandle) VerifyIntegrity(hasher Hasher, manifest types.Manifest) (IntegrityReport, error) {
	var report IntegrityReport
	for _, shard := range manifest.Shards {
		if !h.ShardExists(shard.Index) {
			report.Missing = append(report.Missing, shard.Index)
			continue
		}
		_, err := h.LoadShard(hasher, shard.Index, true, shard.HashHex)
		if err != nil {
			if _, ok := err.(*types.HashMismatchError); ok {
				report.Corrupt = append(report.Corrupt, shard.Index)
				continue
			}
			return IntegrityReport{}, err
		}
	}
	return report, nil
}
