package orchestrator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMountpointEmpty(t *testing.T) {
	dir := t.TempDir()

	empty, err := mountpointEmpty(dir)
	require.NoError(t, err)
	assert.True(t, empty)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "data.db"), []byte("x"), 0o644))
	empty, err = mountpointEmpty(dir)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestMountpointEmptyMissingDir(t *testing.T) {
	empty, err := mountpointEmpty(filepath.Join(t.TempDir(), "not-mounted-yet"))
	require.NoError(t, err)
	assert.True(t, empty, "an unmounted directory counts as empty")
}

func TestResolveUID(t *testing.T) {
	uid, err := resolveUID("")
	require.NoError(t, err)
	assert.Equal(t, -1, uid, "empty owner leaves uid unchanged")

	uid, err = resolveUID("472")
	require.NoError(t, err)
	assert.Equal(t, 472, uid)

	_, err = resolveUID("no-such-user-xyzzy")
	assert.Error(t, err)
}

func TestResolveGID(t *testing.T) {
	gid, err := resolveGID("")
	require.NoError(t, err)
	assert.Equal(t, -1, gid)

	gid, err = resolveGID("472")
	require.NoError(t, err)
	assert.Equal(t, 472, gid)
}
