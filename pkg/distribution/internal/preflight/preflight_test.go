package preflight

import (
	"errors"
	"testing"

	"github.com/clocksmith/doppler/pkg/distribution/types"
)

func TestVendorCapabilities_KnownVendors(t *testing.T) {
	for id, cap := range vendorCapabilities {
		if !cap.Present {
			t.Errorf("vendor %s: Present = false, want true", id)
		}
		if cap.MaxBufferBytes <= 0 {
			t.Errorf("vendor %s: MaxBufferBytes = %d, want > 0", id, cap.MaxBufferBytes)
		}
	}
}

func TestCheck_QuotaRejectionShapesReport(t *testing.T) {
	root := t.TempDir()
	report, err := Check(Requirement{DownloadSize: 1 << 62, StoreRootPath: root})
	var quota *types.QuotaExceededError
	if !errors.As(err, &quota) {
		t.Fatalf("expected QuotaExceededError, got %v", err)
	}
	if quota.Required != 1<<62 {
		t.Errorf("Required = %d, want %d", quota.Required, int64(1<<62))
	}
	if report.CanProceed {
		t.Error("CanProceed = true alongside a returned error")
	}
	if report.StorageOK {
		t.Error("StorageOK = true alongside QuotaExceededError")
	}
}

func TestFreeSpace_ReflectsRealFilesystem(t *testing.T) {
	free, err := freeSpace(t.TempDir())
	if err != nil {
		t.Fatalf("freeSpace: %v", err)
	}
	if free <= 0 {
		t.Errorf("free = %d, want > 0 for a real, non-full filesystem", free)
	}
}

func TestFreeSpace_EmptyRootPath(t *testing.T) {
	if _, err := freeSpace(""); err == nil {
		t.Error("expected error for empty root path")
	}
}
