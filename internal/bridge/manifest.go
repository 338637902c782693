package bridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const manifestName = "burstd-bridge.json"

// Manifest describes how to run one external channel bridge.
type Manifest struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Runtime     string     `json:"runtime"` // "node" | "python" | "exec"
	Setup       [][]string `json:"setup"`   // run once, in order, before the bridge starts
	Run         []string   `json:"run"`     // the resident process argv
	Cwd         string     `json:"cwd"`
	EnvFile     string     `json:"envFile"`
}

// LoadManifest reads and validates the manifest in bridgeDir.
func LoadManifest(bridgeDir string) (*Manifest, error) {
	p := filepath.Join(bridgeDir, manifestName)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.ID == "" {
		return nil, fmt.Errorf("manifest missing id")
	}
	if len(m.Run) == 0 {
		return nil, fmt.Errorf("manifest missing run command")
	}
	if m.Cwd == "" {
		m.Cwd = "."
	}
	return &m, nil
}
