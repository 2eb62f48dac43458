package obslog

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns the default log directory (~/.hnswdb/logs/).
// Falls back to temp directory if home directory is unavailable.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".hnswdb", "logs")
	}
	return filepath.Join(home, ".hnswdb", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// ShardLogPath returns the dedicated log path for a single shard,
// keeping each shard's rotated history separate from the server-wide
// log and from every other shard's.
func ShardLogPath(shardID string) string {
	return filepath.Join(DefaultLogDir(), shardID+".log")
}

// FindLogFile attempts to find the log file for viewing.
// Priority:
// 1. Explicit path (if provided)
// 2. ~/.hnswdb/logs/<shard>.log, if shardID is non-empty
// 3. ~/.hnswdb/logs/server.log (global)
//
// Returns an error if no log file is found.
func FindLogFile(explicit, shardID string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	if shardID != "" {
		shardPath := ShardLogPath(shardID)
		if _, err := os.Stat(shardPath); err == nil {
			return shardPath, nil
		}
		return "", fmt.Errorf("no log file found for shard %q.\nExpected at: %s", shardID, shardPath)
	}

	globalPath := DefaultLogPath()
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	return "", fmt.Errorf("no log file found. No command may have run yet.\nExpected at: %s", globalPath)
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	dir := DefaultLogDir()
	return os.MkdirAll(dir, 0o755)
}
