package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hnswdb/internal/config"
)

// withTempWorkdir chdirs into a fresh temp directory for the duration of
// the test, restoring the previous working directory afterward, matching
// the pattern the pack's own CLI tests use to isolate shard data dirs. It
// also points persistence.data_dir and XDG_CONFIG_HOME at the same temp
// tree so a test never touches the real invoking user's ~/.hnswdb.
func withTempWorkdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })

	origXDG := os.Getenv("XDG_CONFIG_HOME")
	require.NoError(t, os.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg")))
	t.Cleanup(func() { _ = os.Setenv("XDG_CONFIG_HOME", origXDG) })

	// obslog.DefaultConfig resolves its log directory from $HOME; pin it
	// to the temp tree too so a test run never writes into the invoking
	// user's real ~/.hnswdb/logs.
	origHome := os.Getenv("HOME")
	require.NoError(t, os.Setenv("HOME", dir))
	t.Cleanup(func() { _ = os.Setenv("HOME", origHome) })

	dataDir := filepath.Join(dir, "data")
	yaml := fmt.Sprintf("version: 1\npersistence:\n  data_dir: %q\n", dataDir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hnswdb.yaml"), []byte(yaml), 0o644))

	return dir
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestShardCreate_WritesShardMetadataFile(t *testing.T) {
	dir := withTempWorkdir(t)

	out, err := runCmd(t, "shard", "create", "demo", "--dimension", "4", "--metric", "l2")
	require.NoError(t, err)
	assert.Contains(t, out, `created shard "demo"`)
	assert.FileExists(t, dir+"/data/demo/shard.yaml")
}

func TestShardCreate_DuplicateNameFails(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "demo", "--dimension", "4")
	require.NoError(t, err)

	_, err = runCmd(t, "shard", "create", "demo", "--dimension", "4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestShardList_EmptyWhenNoShardsCreated(t *testing.T) {
	withTempWorkdir(t)

	out, err := runCmd(t, "shard", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "(no shards)")
}

func TestShardList_ListsCreatedShards(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "alpha", "--dimension", "4")
	require.NoError(t, err)
	_, err = runCmd(t, "shard", "create", "beta", "--dimension", "4")
	require.NoError(t, err)

	out, err := runCmd(t, "shard", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "beta")
}

func TestShardDrop_RequiresForceFlag(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "demo", "--dimension", "4")
	require.NoError(t, err)

	_, err = runCmd(t, "shard", "drop", "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestShardDrop_RemovesShardDirectory(t *testing.T) {
	dir := withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "demo", "--dimension", "4")
	require.NoError(t, err)

	out, err := runCmd(t, "shard", "drop", "demo", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, `dropped shard "demo"`)
	assert.NoDirExists(t, dir+"/data/demo")
}

func TestInsertSearchGetDelete_EndToEndViaCLI(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "demo", "--dimension", "4", "--metric", "cosine")
	require.NoError(t, err)

	out, err := runCmd(t, "insert", "a", "--shard", "demo", "--vector", "[1,0,0,0]", "--metadata", `{"t":"x"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `inserted "a"`)

	out, err = runCmd(t, "search", "--shard", "demo", "--vector", "[1,0,0,0]", "--k", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `"ID": "a"`)

	out, err = runCmd(t, "get", "a", "--shard", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, `"id": "a"`)

	out, err = runCmd(t, "delete", "a", "--shard", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, `deleted "a"`)

	_, err = runCmd(t, "get", "a", "--shard", "demo")
	require.Error(t, err)
}

func TestInsert_MissingShardFailsWithHelpfulMessage(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "insert", "a", "--shard", "nope", "--vector", "[1,0,0,0]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `shard "nope" does not exist`)
}

func TestShardTune_RewritesMetadataAndBacksUpPrior(t *testing.T) {
	dir := withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "demo", "--dimension", "4", "--ef-search", "16")
	require.NoError(t, err)

	metaPath := filepath.Join(dir, "data", "demo", "shard.yaml")
	before, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	out, err := runCmd(t, "shard", "tune", "demo", "--ef-search", "64")
	require.NoError(t, err)
	assert.Contains(t, out, "ef_search=64")

	after, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	assert.NotEqual(t, string(before), string(after))
	assert.Contains(t, string(after), "ef_search: 64")

	matches, err := filepath.Glob(metaPath + config.BackupSuffix + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 1, "tune must back up the prior shard.yaml before rewriting it")

	backedUp, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Equal(t, before, backedUp)
}

func TestShardTune_NoFlagsFails(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "demo", "--dimension", "4")
	require.NoError(t, err)

	_, err = runCmd(t, "shard", "tune", "demo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parameters given")
}

func TestShardRestore_ListWithNoBackups(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "demo", "--dimension", "4")
	require.NoError(t, err)

	out, err := runCmd(t, "shard", "restore", "demo", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "(no backups)")
}

func TestShardRestore_ListThenRestoreRoundTrips(t *testing.T) {
	dir := withTempWorkdir(t)

	_, err := runCmd(t, "shard", "create", "demo", "--dimension", "4", "--ef-search", "16")
	require.NoError(t, err)

	metaPath := filepath.Join(dir, "data", "demo", "shard.yaml")
	original, err := os.ReadFile(metaPath)
	require.NoError(t, err)

	_, err = runCmd(t, "shard", "tune", "demo", "--ef-search", "64")
	require.NoError(t, err)

	out, err := runCmd(t, "shard", "restore", "demo", "--list")
	require.NoError(t, err)
	matches, err := filepath.Glob(metaPath + config.BackupSuffix + ".*")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Contains(t, out, matches[0])

	_, err = runCmd(t, "shard", "restore", "demo", matches[0])
	require.NoError(t, err)

	restored, err := os.ReadFile(metaPath)
	require.NoError(t, err)
	assert.Equal(t, original, restored)
}
