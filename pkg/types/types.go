package types

import (
	"time"
)

// RestoreMethod identifies one of the restore strategies the orchestrator
// can attempt against a volume.
type RestoreMethod string

const (
	// MethodSyncoid pulls the latest dataset state from a remote replica.
	MethodSyncoid RestoreMethod = "syncoid"
	// MethodLocal rolls the dataset back to its most recent local snapshot.
	MethodLocal RestoreMethod = "local"
	// MethodRestic restores archived sub-paths from a restic repository.
	MethodRestic RestoreMethod = "restic"
)

// Pseudo-methods used only as metric labels for non-strategy outcomes.
const (
	MethodSkipped       RestoreMethod = "skipped"
	MethodPoolUnhealthy RestoreMethod = "pool_unhealthy"
	MethodAll           RestoreMethod = "all"
)

// KnownMethods lists the real restore strategies. Caller preference order
// comes from VolumeSpec.RestoreMethods.
var KnownMethods = []RestoreMethod{MethodSyncoid, MethodLocal, MethodRestic}

// IsKnown reports whether m names a real restore strategy.
func (m RestoreMethod) IsKnown() bool {
	for _, k := range KnownMethods {
		if m == k {
			return true
		}
	}
	return false
}

// VolumeSpec describes one managed volume and how to restore it.
type VolumeSpec struct {
	// Service is the logical service name (metric and journal key).
	Service string
	// Dataset is the ZFS dataset path, e.g. "tank/services/grafana".
	Dataset string
	// Mountpoint is where the dataset is mounted on the host.
	Mountpoint string
	// MainUnit is the dependent service unit this run gates.
	MainUnit string

	// Owner and Group are applied to the mountpoint tree after a
	// successful restore. Either may be a name or a numeric ID.
	Owner string
	Group string

	// Properties are dataset properties re-applied after a replica pull
	// (the transport does not necessarily preserve them) and used when
	// the orchestrator has to recreate the dataset from scratch.
	Properties map[string]string

	// RestoreMethods is the caller's strategy preference order.
	RestoreMethods []RestoreMethod

	// Notifications enables dispatch of push notifications for outcomes.
	Notifications bool

	// Timeout bounds the whole run. Zero means no overall timeout.
	Timeout time.Duration

	// GraveyardMaxBytes is the largest logical size at which an existing
	// snapshotless dataset may be renamed aside before a replica pull.
	// Zero selects the default.
	GraveyardMaxBytes int64
}

// Pool returns the pool component of the dataset path.
func (v *VolumeSpec) Pool() string {
	for i := 0; i < len(v.Dataset); i++ {
		if v.Dataset[i] == '/' {
			return v.Dataset[:i]
		}
	}
	return v.Dataset
}

// ReplicationTarget is the resolved replication topology entry for a
// volume: where to pull a replica from and how to reach it.
type ReplicationTarget struct {
	Host        string
	Dataset     string
	SSHUser     string
	SSHKeyPath  string
	SendOptions []string
	RecvOptions []string
}

// ResticConfig configures the object-store restore strategy. A nil or
// unconfigured value disables the strategy silently.
type ResticConfig struct {
	Repository      string
	PasswordFile    string
	EnvironmentFile string
	// Paths are mount-relative sub-paths to restore.
	Paths []string
	// RetryDelay is the pause between restore attempts. Zero selects the
	// default.
	RetryDelay time.Duration
	// Retries is the number of additional attempts after the first
	// failure. Zero selects the default of one retry.
	Retries int
}

// Configured reports whether the strategy has enough configuration to run.
func (r *ResticConfig) Configured() bool {
	return r != nil && r.Repository != "" && r.PasswordFile != ""
}

// RunStatus is the terminal status of an orchestrator run or of a single
// strategy attempt.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusFailure RunStatus = "failure"
	StatusSkipped RunStatus = "skipped"
)

// RunRecord is one journal entry describing a completed orchestrator run.
type RunRecord struct {
	ID         string        `json:"id"`
	Service    string        `json:"service"`
	Dataset    string        `json:"dataset"`
	Method     RestoreMethod `json:"method"`
	Status     RunStatus     `json:"status"`
	Message    string        `json:"message,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Duration returns the wall-clock duration of the recorded run.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Snapshot is one ZFS snapshot of a dataset.
type Snapshot struct {
	// Name is the part after the "@".
	Name string
	// Dataset is the dataset the snapshot belongs to.
	Dataset string
	// Created is the snapshot creation time.
	Created time.Time
}

// FullName returns the dataset@name form used on the zfs command line.
func (s Snapshot) FullName() string {
	return s.Dataset + "@" + s.Name
}

// NotificationTemplate is the symbolic name of a notification routed to
// the external dispatcher.
type NotificationTemplate string

const (
	NotifySuccess         NotificationTemplate = "preseed-success"
	NotifySkipped         NotificationTemplate = "preseed-skipped"
	NotifyFailure         NotificationTemplate = "preseed-failure"
	NotifyCriticalFailure NotificationTemplate = "preseed-critical-failure"
)
