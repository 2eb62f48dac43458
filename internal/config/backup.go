package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	// MaxBackups is the maximum number of backups to keep per file.
	MaxBackups = 3

	// BackupSuffix is the file extension for backup files.
	BackupSuffix = ".bak"
)

// FileBackup manages timestamped, pruned backups of a single file. It is
// the primitive behind both the global user config's backup/restore
// commands and a shard's own persisted metadata: any file that gets
// rewritten in place and whose previous contents are worth recovering
// can wrap itself in a FileBackup instead of re-deriving the same
// timestamp/prune/restore dance.
type FileBackup struct {
	// Path is the file being protected, e.g. ~/.config/hnswdb/config.yaml
	// or a shard directory's shard.yaml.
	Path string
	// Keep is the number of backups to retain; older ones are pruned after
	// each Create. Zero falls back to MaxBackups.
	Keep int
}

func (b FileBackup) keep() int {
	if b.Keep <= 0 {
		return MaxBackups
	}
	return b.Keep
}

// Create snapshots the current contents of b.Path under a timestamped
// name, then prunes anything beyond b.keep(). Returns ("", nil) if
// b.Path does not exist - there is nothing to protect yet.
func (b FileBackup) Create() (string, error) {
	if _, err := os.Stat(b.Path); err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", b.Path, err)
	}

	timestamp := time.Now().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s%s.%s", b.Path, BackupSuffix, timestamp)

	data, err := os.ReadFile(b.Path)
	if err != nil {
		return "", fmt.Errorf("read %s for backup: %w", b.Path, err)
	}
	if err := os.WriteFile(backupPath, data, 0644); err != nil {
		return "", fmt.Errorf("write backup %s: %w", backupPath, err)
	}

	if err := b.prune(); err != nil {
		// Best-effort: the backup itself already succeeded.
		_ = err
	}

	return backupPath, nil
}

// List returns every backup of b.Path, newest first.
func (b FileBackup) List() ([]string, error) {
	dir := filepath.Dir(b.Path)
	base := filepath.Base(b.Path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	prefix := base + BackupSuffix + "."
	var backups []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, entry.Name()))
		}
	}

	sort.Slice(backups, func(i, j int) bool {
		infoI, _ := os.Stat(backups[i])
		infoJ, _ := os.Stat(backups[j])
		if infoI == nil || infoJ == nil {
			return false
		}
		return infoI.ModTime().After(infoJ.ModTime())
	})
	return backups, nil
}

// prune removes backups beyond b.keep(), oldest first.
func (b FileBackup) prune() error {
	backups, err := b.List()
	if err != nil {
		return err
	}
	keep := b.keep()
	if len(backups) <= keep {
		return nil
	}
	for _, backup := range backups[keep:] {
		if err := os.Remove(backup); err != nil {
			continue // best-effort; keep pruning the rest
		}
	}
	return nil
}

// Restore overwrites b.Path with the contents of backupPath, first
// taking a fresh backup of whatever b.Path currently holds (if it
// exists) so a bad restore is itself recoverable.
func (b FileBackup) Restore(backupPath string) error {
	data, err := os.ReadFile(backupPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	if _, err := os.Stat(b.Path); err == nil {
		if _, err := b.Create(); err != nil {
			return fmt.Errorf("backup current file before restore: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(b.Path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", b.Path, err)
	}
	if err := os.WriteFile(b.Path, data, 0644); err != nil {
		return fmt.Errorf("write restored file %s: %w", b.Path, err)
	}
	return nil
}

// userConfigBackup is the FileBackup for the global ~/.config/hnswdb/config.yaml.
func userConfigBackup() FileBackup {
	return FileBackup{Path: GetUserConfigPath()}
}

// BackupUserConfig creates a timestamped backup of the user config file.
// Returns the backup file path on success. If no user config exists,
// returns empty string and nil error.
func BackupUserConfig() (string, error) {
	return userConfigBackup().Create()
}

// ListUserConfigBackups returns all backup files for the user config,
// sorted by modification time (newest first).
func ListUserConfigBackups() ([]string, error) {
	return userConfigBackup().List()
}

// RestoreUserConfig restores the user config from a backup file. The
// current config (if any) is backed up before restore.
func RestoreUserConfig(backupPath string) error {
	return userConfigBackup().Restore(backupPath)
}

// ShardMetaBackup returns the FileBackup guarding a shard's own
// persisted shard.yaml (its immutable dimension/metric/hyperparameter
// record) at shardMetaPath. Callers that rewrite shard.yaml - e.g. a
// shard retune that adjusts a mutable knob like ef_search or the
// compaction threshold - take a backup first so a bad rewrite can be
// undone with `shard restore`.
func ShardMetaBackup(shardMetaPath string) FileBackup {
	return FileBackup{Path: shardMetaPath, Keep: MaxBackups}
}
