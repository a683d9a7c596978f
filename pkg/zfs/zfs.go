package zfs

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tarnmoor/preseed/pkg/types"
)

const (
	// MarkerProperty is the ZFS user property holding the completion
	// marker. Living on the dataset itself, it is cleared automatically
	// when the dataset is destroyed and recreated.
	MarkerProperty = "preseed:complete"

	// HoldTag is the tag used for holds placed on rollback targets.
	HoldTag = "preseed"
)

// Manager wraps the zfs and zpool command-line tools with typed
// operations. All mutation goes through the injected Runner.
type Manager struct {
	run Runner
}

// NewManager creates a Manager backed by the given Runner.
func NewManager(r Runner) *Manager {
	if r == nil {
		r = ExecRunner{}
	}
	return &Manager{run: r}
}

// DatasetExists reports whether the dataset exists. Only the "does not
// exist" exit counts as absent; any other failure (permissions, missing
// binary, suspended pool) is propagated so callers never mutate a
// dataset they merely failed to see.
func (m *Manager) DatasetExists(ctx context.Context, dataset string) (bool, error) {
	_, err := m.run.Run(ctx, "zfs", "list", "-H", "-o", "name", dataset)
	if err != nil {
		if strings.Contains(err.Error(), "does not exist") {
			return false, nil
		}
		return false, fmt.Errorf("check dataset %s: %w", dataset, err)
	}
	return true, nil
}

// Create creates the dataset (and missing parents) with the given
// mountpoint and properties.
func (m *Manager) Create(ctx context.Context, dataset, mountpoint string, props map[string]string) error {
	args := []string{"create", "-p"}
	if mountpoint != "" {
		args = append(args, "-o", "mountpoint="+mountpoint)
	}
	for _, k := range sortedKeys(props) {
		args = append(args, "-o", k+"="+props[k])
	}
	args = append(args, dataset)
	if _, err := m.run.Run(ctx, "zfs", args...); err != nil {
		return fmt.Errorf("create dataset %s: %w", dataset, err)
	}
	return nil
}

// Destroy destroys the dataset, recursively when requested.
func (m *Manager) Destroy(ctx context.Context, dataset string, recursive bool) error {
	args := []string{"destroy"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, dataset)
	if _, err := m.run.Run(ctx, "zfs", args...); err != nil {
		return fmt.Errorf("destroy dataset %s: %w", dataset, err)
	}
	return nil
}

// Rename renames a dataset in place. Used for the graveyard rename-aside
// that replaces destroy-before-restore.
func (m *Manager) Rename(ctx context.Context, from, to string) error {
	if _, err := m.run.Run(ctx, "zfs", "rename", from, to); err != nil {
		return fmt.Errorf("rename dataset %s -> %s: %w", from, to, err)
	}
	return nil
}

// Mount mounts the dataset. Mounting an already-mounted dataset is a
// no-op, not an error.
func (m *Manager) Mount(ctx context.Context, dataset string) error {
	_, err := m.run.Run(ctx, "zfs", "mount", dataset)
	if err != nil && !strings.Contains(err.Error(), "already mounted") {
		return fmt.Errorf("mount dataset %s: %w", dataset, err)
	}
	return nil
}

// SetProperty sets one dataset property.
func (m *Manager) SetProperty(ctx context.Context, dataset, key, value string) error {
	if _, err := m.run.Run(ctx, "zfs", "set", key+"="+value, dataset); err != nil {
		return fmt.Errorf("set %s=%s on %s: %w", key, value, dataset, err)
	}
	return nil
}

// GetProperty reads one dataset property value. Unset user properties
// read as "-".
func (m *Manager) GetProperty(ctx context.Context, dataset, key string) (string, error) {
	out, err := m.run.Run(ctx, "zfs", "get", "-H", "-o", "value", key, dataset)
	if err != nil {
		return "", fmt.Errorf("get %s on %s: %w", key, dataset, err)
	}
	return out, nil
}

// IsComplete reads the completion marker.
func (m *Manager) IsComplete(ctx context.Context, dataset string) (bool, error) {
	v, err := m.GetProperty(ctx, dataset, MarkerProperty)
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// MarkComplete sets the completion marker.
func (m *Manager) MarkComplete(ctx context.Context, dataset string) error {
	return m.SetProperty(ctx, dataset, MarkerProperty, "true")
}

// Snapshots lists the dataset's own snapshots, oldest first.
func (m *Manager) Snapshots(ctx context.Context, dataset string) ([]types.Snapshot, error) {
	out, err := m.run.Run(ctx, "zfs", "list", "-H", "-p",
		"-t", "snapshot", "-o", "name,creation", "-d", "1", dataset)
	if err != nil {
		return nil, fmt.Errorf("list snapshots of %s: %w", dataset, err)
	}

	var snaps []types.Snapshot
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		full := fields[0]
		at := strings.IndexByte(full, '@')
		if at < 0 {
			continue
		}
		unix, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			continue
		}
		snaps = append(snaps, types.Snapshot{
			Dataset: full[:at],
			Name:    full[at+1:],
			Created: time.Unix(unix, 0),
		})
	}

	sort.Slice(snaps, func(i, j int) bool { return snaps[i].Created.Before(snaps[j].Created) })
	return snaps, nil
}

// CreateSnapshot takes a snapshot of the dataset.
func (m *Manager) CreateSnapshot(ctx context.Context, dataset, name string) error {
	if _, err := m.run.Run(ctx, "zfs", "snapshot", dataset+"@"+name); err != nil {
		return fmt.Errorf("snapshot %s@%s: %w", dataset, name, err)
	}
	return nil
}

// DestroySnapshot destroys one snapshot by full dataset@name.
func (m *Manager) DestroySnapshot(ctx context.Context, fullName string) error {
	if _, err := m.run.Run(ctx, "zfs", "destroy", fullName); err != nil {
		return fmt.Errorf("destroy snapshot %s: %w", fullName, err)
	}
	return nil
}

// Rollback rolls the dataset back to the snapshot, destroying any more
// recent snapshots.
func (m *Manager) Rollback(ctx context.Context, fullName string) error {
	if _, err := m.run.Run(ctx, "zfs", "rollback", "-r", fullName); err != nil {
		return fmt.Errorf("rollback to %s: %w", fullName, err)
	}
	return nil
}

// Hold places a hold on the snapshot so concurrent pruning cannot destroy
// it mid-rollback.
func (m *Manager) Hold(ctx context.Context, fullName string) error {
	if _, err := m.run.Run(ctx, "zfs", "hold", HoldTag, fullName); err != nil {
		return fmt.Errorf("hold %s: %w", fullName, err)
	}
	return nil
}

// Release releases a hold placed by Hold. A missing hold is not an error.
func (m *Manager) Release(ctx context.Context, fullName string) error {
	_, err := m.run.Run(ctx, "zfs", "release", HoldTag, fullName)
	if err != nil && !strings.Contains(err.Error(), "no such tag") {
		return fmt.Errorf("release %s: %w", fullName, err)
	}
	return nil
}

// UsedBytes returns the logical space referenced by the dataset.
func (m *Manager) UsedBytes(ctx context.Context, dataset string) (int64, error) {
	out, err := m.run.Run(ctx, "zfs", "get", "-H", "-p", "-o", "value", "logicalused", dataset)
	if err != nil {
		return 0, fmt.Errorf("get logicalused of %s: %w", dataset, err)
	}
	n, err := strconv.ParseInt(out, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse logicalused %q of %s: %w", out, dataset, err)
	}
	return n, nil
}

// PoolHealth returns the health string of the pool, e.g. "ONLINE".
func (m *Manager) PoolHealth(ctx context.Context, pool string) (string, error) {
	out, err := m.run.Run(ctx, "zpool", "list", "-H", "-o", "health", pool)
	if err != nil {
		return "", fmt.Errorf("pool health of %s: %w", pool, err)
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
