package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tarnmoor/preseed/pkg/replication"
	"github.com/tarnmoor/preseed/pkg/types"
)

// File is the on-disk YAML configuration for one managed volume.
type File struct {
	Service    string `yaml:"service"`
	Dataset    string `yaml:"dataset"`
	Mountpoint string `yaml:"mountpoint"`
	MainUnit   string `yaml:"mainUnit"`

	Owner string `yaml:"owner"`
	Group string `yaml:"group"`

	TimeoutSeconds    int   `yaml:"timeoutSeconds"`
	GraveyardMaxBytes int64 `yaml:"graveyardMaxBytes"`

	RestoreMethods []string          `yaml:"restoreMethods"`
	Notifications  bool              `yaml:"notifications"`
	Properties     map[string]string `yaml:"properties"`

	Replication ReplicationSection `yaml:"replication"`
	Restic      *ResticSection     `yaml:"restic"`

	// Operational paths. Empty values select the package defaults.
	MetricsDir    string   `yaml:"metricsDir"`
	RunDir        string   `yaml:"runDir"`
	DataDir       string   `yaml:"dataDir"`
	NotifyCommand []string `yaml:"notifyCommand"`

	SyncoidTimeoutSeconds int `yaml:"syncoidTimeoutSeconds"`
}

// ReplicationSection holds the global switch and the topology table.
type ReplicationSection struct {
	Enabled  bool                                 `yaml:"enabled"`
	Topology map[string]replication.TopologyEntry `yaml:"topology"`
}

// ResticSection configures the object-store restore strategy.
type ResticSection struct {
	Repository        string   `yaml:"repository"`
	PasswordFile      string   `yaml:"passwordFile"`
	EnvironmentFile   string   `yaml:"environmentFile"`
	Paths             []string `yaml:"paths"`
	RetryDelaySeconds int      `yaml:"retryDelaySeconds"`
	Retries           int      `yaml:"retries"`
}

// Load reads and validates a volume configuration file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return &f, nil
}

// Validate checks the fields the orchestrator cannot run without.
// Unknown restore method names are not rejected here; the orchestrator
// warns and skips them so a config typo degrades instead of blocking a
// boot.
func (f *File) Validate() error {
	if f.Service == "" {
		return fmt.Errorf("service is required")
	}
	if f.Dataset == "" {
		return fmt.Errorf("dataset is required")
	}
	if f.Mountpoint == "" {
		return fmt.Errorf("mountpoint is required")
	}
	if len(f.RestoreMethods) == 0 {
		return fmt.Errorf("restoreMethods must not be empty")
	}
	if f.Restic != nil && f.Restic.Repository != "" && f.Restic.PasswordFile == "" {
		return fmt.Errorf("restic.passwordFile is required when restic.repository is set")
	}
	return nil
}

// VolumeSpec converts the file into the orchestrator's volume spec.
func (f *File) VolumeSpec() *types.VolumeSpec {
	methods := make([]types.RestoreMethod, 0, len(f.RestoreMethods))
	for _, m := range f.RestoreMethods {
		methods = append(methods, types.RestoreMethod(m))
	}

	return &types.VolumeSpec{
		Service:           f.Service,
		Dataset:           f.Dataset,
		Mountpoint:        f.Mountpoint,
		MainUnit:          f.MainUnit,
		Owner:             f.Owner,
		Group:             f.Group,
		Properties:        f.Properties,
		RestoreMethods:    methods,
		Notifications:     f.Notifications,
		Timeout:           time.Duration(f.TimeoutSeconds) * time.Second,
		GraveyardMaxBytes: f.GraveyardMaxBytes,
	}
}

// ReplicationTarget resolves the volume's replication target from the
// topology table. Nil when replication is disabled or no ancestor entry
// covers the dataset.
func (f *File) ReplicationTarget() *types.ReplicationTarget {
	return replication.Resolve(f.Dataset, f.Replication.Topology, f.Replication.Enabled)
}

// ResticConfig converts the restic section. Nil when the strategy is
// unconfigured, which the orchestrator treats as "skip silently".
func (f *File) ResticConfig() *types.ResticConfig {
	if f.Restic == nil || f.Restic.Repository == "" {
		return nil
	}
	return &types.ResticConfig{
		Repository:      f.Restic.Repository,
		PasswordFile:    f.Restic.PasswordFile,
		EnvironmentFile: f.Restic.EnvironmentFile,
		Paths:           f.Restic.Paths,
		RetryDelay:      time.Duration(f.Restic.RetryDelaySeconds) * time.Second,
		Retries:         f.Restic.Retries,
	}
}

// SyncoidTimeout returns the replica pull timeout, zero for the default.
func (f *File) SyncoidTimeout() time.Duration {
	return time.Duration(f.SyncoidTimeoutSeconds) * time.Second
}
