// Package preflight checks free space, VRAM estimate, and platform
// capability before a download is allowed to begin.
package preflight

import (
	"fmt"
	"syscall"

	"github.com/jaypipes/ghw"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

// Requirement describes what a pending download needs.
type Requirement struct {
	DownloadSize  int64
	VRAMRequired  int64
	StoreRootPath string
}

// GPUCapability is a coarse feature summary, the GPU-Docker-client probe
// reimagined without a container runtime dependency: vendor detection via
// PCI enumeration, since there is no engine to ask for declared runtimes.
type GPUCapability struct {
	Present          bool
	VendorName       string
	HasF16Shaders    bool
	UnifiedMemory    bool
	MaxBufferBytes   int64
}

// Report is the outcome of a preflight check.
type Report struct {
	CanProceed bool
	VRAM       GPUCapability
	StorageOK  bool
	FreeBytes  int64
	Warnings   []string
	Blockers   []string
}

const lowHeadroomThreshold = 512 * 1024 * 1024 // 512 MiB

// Check runs the free-space, GPU-capability, and platform-availability
// checks for req and returns a report with blockers/warnings populated.
// It never returns an error for a normal block condition — those surface
// as entries in Report.Blockers — but does return QuotaExceededError
// directly when storage space alone is the rejection reason, since
// callers (the downloader) reject on that specific condition.
func Check(req Requirement) (Report, error) {
	var report Report

	free, err := freeSpace(req.StoreRootPath)
	if err != nil {
		report.Blockers = append(report.Blockers, "no platform persistent storage")
		return report, nil
	}
	report.FreeBytes = free
	report.StorageOK = free >= req.DownloadSize
	if !report.StorageOK {
		return report, &types.QuotaExceededError{Required: req.DownloadSize, Available: free}
	}

	gpu := probeGPU()
	report.VRAM = gpu
	if !gpu.Present {
		report.Blockers = append(report.Blockers, "no GPU facility")
	} else if req.VRAMRequired > 0 && gpu.MaxBufferBytes > 0 && gpu.MaxBufferBytes < req.VRAMRequired {
		report.Blockers = append(report.Blockers, "insufficient estimated VRAM")
	}
	if gpu.Present && !gpu.HasF16Shaders {
		report.Warnings = append(report.Warnings, "no F16 shader feature")
	}
	if gpu.Present && gpu.MaxBufferBytes > 0 && gpu.MaxBufferBytes-req.VRAMRequired < lowHeadroomThreshold {
		report.Warnings = append(report.Warnings, "low headroom on discrete GPU")
	}

	report.CanProceed = len(report.Blockers) == 0
	return report, nil
}

// freeSpace reports bytes actually available for non-root writers on the
// filesystem that holds rootPath, mirroring the statfs-based check the
// store layer performs per-write. ghw.Block() reports partition capacity,
// not availability, so it cannot answer "will this download fit."
func freeSpace(rootPath string) (int64, error) {
	if rootPath == "" {
		return 0, fmt.Errorf("no store root path provided")
	}
	var stat syscall.Statfs_t
	if err := syscall.Statfs(rootPath, &stat); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", rootPath, err)
	}
	return int64(stat.Bavail) * int64(stat.Bsize), nil
}

var vendorCapabilities = map[string]GPUCapability{
	"10de": {Present: true, VendorName: "nvidia", HasF16Shaders: true, MaxBufferBytes: 16 << 30},
	"1002": {Present: true, VendorName: "amd", HasF16Shaders: true, MaxBufferBytes: 8 << 30},
	"8086": {Present: true, VendorName: "intel", HasF16Shaders: false, UnifiedMemory: true, MaxBufferBytes: 4 << 30},
}

// probeGPU enumerates PCI devices and maps known display-controller vendor
// IDs to a coarse capability profile. Best-effort: an unreadable PCI bus
// yields GPUCapability{} rather than an error.
func probeGPU() GPUCapability {
	gpuInfo, err := ghw.GPU()
	if err != nil || len(gpuInfo.GraphicsCards) == 0 {
		return GPUCapability{}
	}
	for _, card := range gpuInfo.GraphicsCards {
		if card.DeviceInfo == nil {
			continue
		}
		if cap, ok := vendorCapabilities[card.DeviceInfo.Vendor.ID]; ok {
			return cap
		}
	}
	return GPUCapability{Present: true}
}
