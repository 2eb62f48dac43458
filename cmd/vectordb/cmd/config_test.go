package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigInit_CreatesUserConfigFile(t *testing.T) {
	withTempWorkdir(t)

	out, err := runCmd(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "created user configuration")

	out, err = runCmd(t, "config", "path")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestConfigInit_WithoutForceLeavesExistingFileAlone(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "config", "init")
	require.NoError(t, err)

	out, err := runCmd(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "already exists")
}

func TestConfigInit_ForceBacksUpThenOverwrites(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "config", "init")
	require.NoError(t, err)

	out, err := runCmd(t, "config", "init", "--force")
	require.NoError(t, err)
	assert.Contains(t, out, "backed up existing configuration")
	assert.Contains(t, out, "created user configuration")

	out, err = runCmd(t, "config", "restore", "--list")
	require.NoError(t, err)
	assert.NotContains(t, out, "(no backups)")
}

func TestConfigShow_DefaultsSourcePrintsYAML(t *testing.T) {
	withTempWorkdir(t)

	out, err := runCmd(t, "config", "show", "--source", "defaults")
	require.NoError(t, err)
	assert.Contains(t, out, "version:")
}

func TestConfigShow_UnknownSourceFails(t *testing.T) {
	withTempWorkdir(t)

	_, err := runCmd(t, "config", "show", "--source", "bogus")
	require.Error(t, err)
}

func TestConfigRestore_ListWithNoBackupsReportsEmpty(t *testing.T) {
	withTempWorkdir(t)

	out, err := runCmd(t, "config", "restore", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "(no backups)")
}
