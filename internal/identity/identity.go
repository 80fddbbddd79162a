// Package identity provides the daemon's identity for /api/info and the
// mDNS advertisement.
package identity

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/micro-nova/callaudio-go/internal/models"
)

// DefaultVersion is the fallback version string when metadata.json is not found.
const DefaultVersion = "0.1.0-go"

// GetHostname returns the system hostname.
func GetHostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "callaudio"
	}
	return h
}

// GetVersionFromDir reads the version from metadata.json in dir. If dir is
// empty, ~/.config/callaudio is used. Falls back to DefaultVersion.
func GetVersionFromDir(dir string) string {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultVersion
		}
		dir = filepath.Join(home, ".config", "callaudio")
	}

	data, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
	if err != nil {
		return DefaultVersion
	}

	var meta struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &meta); err != nil || meta.Version == "" {
		return DefaultVersion
	}
	return meta.Version
}

// Load builds the info reported by the daemon.
func Load(configDir, backend string) models.Info {
	return models.Info{
		Hostname: GetHostname(),
		Version:  GetVersionFromDir(configDir),
		Backend:  backend,
	}
}

// TXT returns the DNS-SD TXT records describing info.
func TXT(info models.Info) []string {
	return []string{
		"version=" + info.Version,
		"backend=" + info.Backend,
		"api=/api",
	}
}
