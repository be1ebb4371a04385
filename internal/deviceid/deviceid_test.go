package deviceid

import (
	"path/filepath"
	"testing"
)

func TestGetOrCreateAtIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device_id")

	first, err := GetOrCreateAt(path)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if first == "" {
		t.Fatal("expected a generated device ID")
	}

	second, err := GetOrCreateAt(path)
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if second != first {
		t.Errorf("device ID changed between calls: %q vs %q", first, second)
	}
}

func TestGetOrCreateAtCreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "device_id")
	if _, err := GetOrCreateAt(path); err != nil {
		t.Fatalf("expected parent directories to be created: %v", err)
	}
}
