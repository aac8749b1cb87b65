package migration

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Git-Ansh/crypto-trading-platform-sub003/internal/runtime"
)

// legacyBotConfig is the subset of a dedicated bot's config.json this
// package needs to rewrite it for pool-internal paths.
type legacyBotConfig struct {
	InstanceID     string  `json:"instanceId"`
	Strategy       string  `json:"strategy"`
	InitialBalance float64 `json:"initialBalance"`
	Port           int     `json:"port"`
	Username       string  `json:"username,omitempty"`
	Password       string  `json:"password,omitempty"`
}

// discoveredBot is one candidate found by Discover.
type discoveredBot struct {
	UserID        string
	InstanceID    string
	Dir           string
	ContainerName string
	Config        legacyBotConfig
}

// discover walks {root}/{userId}/{instanceId}/config.json, the legacy
// dedicated layout, then cross-references each candidate against its
// dedicated container through rt: a config directory whose container no
// longer exists is stale (already removed, or never ran) and is dropped
// rather than migrated. A container that exists but is stopped is still a
// valid candidate, since the migrate step itself tolerates (and performs)
// a stop before moving the bot into its pool slot.
func discover(ctx context.Context, root string, rt runtime.ContainerRuntime, logger *slog.Logger) ([]discoveredBot, error) {
	userDirs, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []discoveredBot
	for _, ud := range userDirs {
		if !ud.IsDir() {
			continue
		}
		userID := ud.Name()
		userPath := filepath.Join(root, userID)

		instDirs, err := os.ReadDir(userPath)
		if err != nil {
			continue
		}
		for _, id := range instDirs {
			if !id.IsDir() {
				continue
			}
			instanceID := id.Name()
			// Pool directories are named "{userId}-pool-{n}"; skip them so a
			// pool's own bots/ subtree is never mistaken for a dedicated bot.
			if isPoolDirName(instanceID, userID) {
				continue
			}

			confPath := filepath.Join(userPath, instanceID, "config.json")
			data, err := os.ReadFile(confPath)
			if err != nil {
				continue
			}
			var cfg legacyBotConfig
			if err := json.Unmarshal(data, &cfg); err != nil {
				continue
			}
			if cfg.InstanceID == "" {
				cfg.InstanceID = instanceID
			}

			containerName := "bot-dedicated-" + instanceID
			if _, err := rt.ContainerInspect(ctx, containerName); err != nil {
				if errors.Is(err, runtime.ErrContainerNotFound) {
					logger.Warn("migration: skipping stale config directory with no matching container", "instance_id", instanceID, "container", containerName)
					continue
				}
				return nil, err
			}

			out = append(out, discoveredBot{
				UserID:        userID,
				InstanceID:    instanceID,
				Dir:           filepath.Join(userPath, instanceID),
				ContainerName: containerName,
				Config:        cfg,
			})
		}
	}
	return out, nil
}

func isPoolDirName(name, userID string) bool {
	prefix := userID + "-pool-"
	return len(name) > len(prefix) && name[:len(prefix)] == prefix
}

// backupDir returns the sibling backup directory for a dedicated bot's
// config, created before any destructive step.
func backupDir(instanceDir string) string {
	return instanceDir + ".pre-migration-backup"
}

func backupConfig(instanceDir string) error {
	dst := backupDir(instanceDir)
	if err := os.MkdirAll(dst, 0755); err != nil {
		return err
	}
	data, err := os.ReadFile(filepath.Join(instanceDir, "config.json"))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dst, "config.json"), data, 0644)
}
