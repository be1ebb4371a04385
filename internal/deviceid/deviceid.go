// Package deviceid provides the persistent identity this machine uses
// in discovery announcements and as the default auth username.
package deviceid

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/remotedesk/remotedesk/internal/config"
)

// GetOrCreate returns the device ID stored under ~/.remotedesk,
// generating and persisting a fresh uuid on first use.
func GetOrCreate() (string, error) {
	paths, err := config.GetPaths()
	if err != nil {
		return "", err
	}
	return GetOrCreateAt(paths.DeviceIDFile)
}

// GetOrCreateAt is GetOrCreate against an explicit file path.
func GetOrCreateAt(path string) (string, error) {
	if data, err := os.ReadFile(path); err == nil {
		if id := strings.TrimSpace(string(data)); id != "" {
			return id, nil
		}
	}

	id := uuid.New().String()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(id), 0600); err != nil {
		return "", err
	}
	return id, nil
}
