package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarnmoor/preseed/pkg/types"
)

const sampleConfig = `
service: grafana
dataset: tank/services/grafana
mountpoint: /srv/grafana
mainUnit: podman-grafana.service
owner: "472"
group: "472"
timeoutSeconds: 3600
graveyardMaxBytes: 1048576
restoreMethods: [syncoid, local, restic]
notifications: true
properties:
  recordsize: 16K
  compression: zstd
replication:
  enabled: true
  topology:
    tank/services:
      host: vault
      dataset: backup/services
      sshUser: syncoid
      sshKey: /etc/keys/syncoid
restic:
  repository: s3:https://objects.example/preseed
  passwordFile: /etc/keys/restic-password
  environmentFile: /etc/keys/restic.env
  paths: [data]
  retryDelaySeconds: 10
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "volume.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	spec := f.VolumeSpec()
	assert.Equal(t, "grafana", spec.Service)
	assert.Equal(t, "tank/services/grafana", spec.Dataset)
	assert.Equal(t, "/srv/grafana", spec.Mountpoint)
	assert.Equal(t, "podman-grafana.service", spec.MainUnit)
	assert.Equal(t, time.Hour, spec.Timeout)
	assert.Equal(t, int64(1048576), spec.GraveyardMaxBytes)
	assert.Equal(t, []types.RestoreMethod{
		types.MethodSyncoid, types.MethodLocal, types.MethodRestic,
	}, spec.RestoreMethods)
	assert.True(t, spec.Notifications)
	assert.Equal(t, "zstd", spec.Properties["compression"])
	assert.Equal(t, "tank", spec.Pool())
}

func TestLoadResolvesReplicationTarget(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	target := f.ReplicationTarget()
	require.NotNil(t, target)
	assert.Equal(t, "vault", target.Host)
	assert.Equal(t, "backup/services/grafana", target.Dataset)
	assert.Equal(t, "syncoid", target.SSHUser)
}

func TestLoadResticConfig(t *testing.T) {
	f, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	rcfg := f.ResticConfig()
	require.NotNil(t, rcfg)
	assert.Equal(t, "s3:https://objects.example/preseed", rcfg.Repository)
	assert.Equal(t, 10*time.Second, rcfg.RetryDelay)
	assert.True(t, rcfg.Configured())
}

func TestLoadWithoutRestic(t *testing.T) {
	f, err := Load(writeConfig(t, `
service: grafana
dataset: tank/services/grafana
mountpoint: /srv/grafana
restoreMethods: [local]
`))
	require.NoError(t, err)
	assert.Nil(t, f.ResticConfig())
	assert.Nil(t, f.ReplicationTarget())
}

func TestValidateMissingFields(t *testing.T) {
	cases := []struct {
		name   string
		config string
	}{
		{"missing service", "dataset: tank/a\nmountpoint: /srv/a\nrestoreMethods: [local]\n"},
		{"missing dataset", "service: a\nmountpoint: /srv/a\nrestoreMethods: [local]\n"},
		{"missing mountpoint", "service: a\ndataset: tank/a\nrestoreMethods: [local]\n"},
		{"empty methods", "service: a\ndataset: tank/a\nmountpoint: /srv/a\n"},
		{"restic without password", "service: a\ndataset: tank/a\nmountpoint: /srv/a\nrestoreMethods: [restic]\nrestic:\n  repository: s3:x\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.config))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadBadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "service: [unterminated"))
	assert.Error(t, err)
}
