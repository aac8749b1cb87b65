package mapper

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// onDiskBotConfig is the subset of a bot's config.json this package reads:
// its listen port and basic-auth credentials. The trading semantics of the
// rest of the file are out of scope here.
type onDiskBotConfig struct {
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// discoverBotDir resolves a bot's on-disk instance directory by walking
// {root}/{userId}/…, trying the legacy dedicated path first and the pool
// path second. Returns the directory and whether it was the legacy
// (dedicated) layout.
func discoverBotDir(root, userID, instanceID, poolID string) (dir string, dedicated bool, ok bool) {
	legacy := filepath.Join(root, userID, instanceID)
	if info, err := os.Stat(legacy); err == nil && info.IsDir() {
		return legacy, true, true
	}

	if poolID != "" {
		pooled := filepath.Join(root, userID, poolID, "bots", instanceID)
		if info, err := os.Stat(pooled); err == nil && info.IsDir() {
			return pooled, false, true
		}
	}

	return "", false, false
}

func readBotConfig(dir string) (onDiskBotConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		return onDiskBotConfig{}, err
	}
	var cfg onDiskBotConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return onDiskBotConfig{}, err
	}
	return cfg, nil
}
