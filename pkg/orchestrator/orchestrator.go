package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tarnmoor/preseed/pkg/health"
	"github.com/tarnmoor/preseed/pkg/lock"
	"github.com/tarnmoor/preseed/pkg/log"
	"github.com/tarnmoor/preseed/pkg/metrics"
	"github.com/tarnmoor/preseed/pkg/notify"
	"github.com/tarnmoor/preseed/pkg/types"
)

const (
	// ProtectivePrefix names snapshots taken by the orchestrator itself.
	ProtectivePrefix = "preseed-"

	// ProtectiveKeep is how many protective snapshots survive pruning.
	ProtectiveKeep = 2

	// DefaultGraveyardMaxBytes is the largest logical size at which a
	// snapshotless dataset may still be renamed aside before a replica
	// pull. Anything bigger likely holds real data racing the scheduled
	// snapshot subsystem.
	DefaultGraveyardMaxBytes = 1 << 20
)

// ErrPoolUnhealthy aborts a run before any mutation.
var ErrPoolUnhealthy = errors.New("storage pool unhealthy")

// Volumes is the dataset surface the orchestrator needs. *zfs.Manager
// implements it; tests use an in-memory fake.
type Volumes interface {
	DatasetExists(ctx context.Context, dataset string) (bool, error)
	Create(ctx context.Context, dataset, mountpoint string, props map[string]string) error
	Destroy(ctx context.Context, dataset string, recursive bool) error
	Rename(ctx context.Context, from, to string) error
	Mount(ctx context.Context, dataset string) error
	SetProperty(ctx context.Context, dataset, key, value string) error
	GetProperty(ctx context.Context, dataset, key string) (string, error)
	IsComplete(ctx context.Context, dataset string) (bool, error)
	MarkComplete(ctx context.Context, dataset string) error
	Snapshots(ctx context.Context, dataset string) ([]types.Snapshot, error)
	CreateSnapshot(ctx context.Context, dataset, name string) error
	DestroySnapshot(ctx context.Context, fullName string) error
	Rollback(ctx context.Context, fullName string) error
	Hold(ctx context.Context, fullName string) error
	Release(ctx context.Context, fullName string) error
	UsedBytes(ctx context.Context, dataset string) (int64, error)
}

// ReplicaPuller pulls a remote replica onto the destination dataset.
type ReplicaPuller interface {
	Pull(ctx context.Context, target *types.ReplicationTarget, dest string) error
}

// ObjectStore restores archived sub-paths from a backup repository.
type ObjectStore interface {
	Check(ctx context.Context) error
	Restore(ctx context.Context, targetDir string) error
}

// Journal records completed runs.
type Journal interface {
	Append(rec *types.RunRecord) error
}

// MetricsWriter publishes the run outcome.
type MetricsWriter interface {
	WriteOutcome(service string, method types.RestoreMethod, status types.RunStatus, duration time.Duration) error
}

// Locker serializes runs per dataset.
type Locker interface {
	Acquire(dataset string) (*lock.Lock, error)
}

// Config wires an Orchestrator.
type Config struct {
	Spec        *types.VolumeSpec
	Replication *types.ReplicationTarget // nil: no replica pull possible
	Restic      *types.ResticConfig      // nil: restic skipped silently

	Volumes  Volumes
	Puller   ReplicaPuller
	Store    ObjectStore // nil: restic skipped silently
	Health   health.Checker
	Notifier notify.Notifier
	Journal  Journal
	Metrics  MetricsWriter
	Locks    Locker

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Orchestrator decides whether a volume needs restoring and drives the
// configured strategies in order until one succeeds or all are
// exhausted.
type Orchestrator struct {
	cfg          Config
	runID        string
	graveyardMax int64
	now          func() time.Time
	notifier     notify.Notifier
	logger       zerolog.Logger
}

// New creates an Orchestrator for one volume.
func New(cfg Config) *Orchestrator {
	gmax := cfg.Spec.GraveyardMaxBytes
	if gmax <= 0 {
		gmax = DefaultGraveyardMaxBytes
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	notifier := cfg.Notifier
	if notifier == nil || !cfg.Spec.Notifications {
		notifier = notify.Nop{}
	}

	return &Orchestrator{
		cfg:          cfg,
		runID:        uuid.New().String(),
		graveyardMax: gmax,
		now:          now,
		notifier:     notifier,
		logger: log.WithService(cfg.Spec.Service).With().
			Str("dataset", cfg.Spec.Dataset).
			Logger(),
	}
}

// Run executes one restore decision for the volume.
//
// The exit contract matters more than the restore itself: only a
// pool-health abort or a live concurrent run may return an error, so
// that strategy exhaustion never blocks the dependent service from
// starting against an empty volume.
func (o *Orchestrator) Run(ctx context.Context) error {
	timer := metrics.NewTimer()
	started := o.now()
	spec := o.cfg.Spec

	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	// Pool precheck comes before the lock: an unhealthy pool aborts
	// without touching lock or marker.
	res := o.cfg.Health.Check(ctx)
	if !res.Healthy {
		o.logger.Error().Str("detail", res.Message).Msg("pool precheck failed")
		o.record(types.MethodPoolUnhealthy, types.StatusFailure, res.Message, started, timer)
		o.notifyTemplate(ctx, types.NotifyCriticalFailure,
			fmt.Sprintf("preseed aborted for %s: %s", spec.Service, res.Message))
		return fmt.Errorf("%w: %s", ErrPoolUnhealthy, res.Message)
	}

	lck, err := o.cfg.Locks.Acquire(spec.Dataset)
	if err != nil {
		o.logger.Error().Err(err).Msg("could not acquire run lock")
		return err
	}
	defer func() {
		if rerr := lck.Release(); rerr != nil {
			o.logger.Warn().Err(rerr).Msg("failed to release run lock")
		}
	}()

	err = o.run(ctx, started, timer)
	if err != nil {
		// Whatever went wrong, observability must survive it: write the
		// failure metric and page the operator before surfacing.
		o.record(types.MethodAll, types.StatusFailure, err.Error(), started, timer)
		o.notifyTemplate(ctx, types.NotifyCriticalFailure,
			fmt.Sprintf("preseed hit an unexpected error for %s: %v", spec.Service, err))
	}
	return err
}

func (o *Orchestrator) run(ctx context.Context, started time.Time, timer *metrics.Timer) error {
	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	exists, err := vols.DatasetExists(ctx, spec.Dataset)
	if err != nil {
		return err
	}
	if exists {
		done, err := vols.IsComplete(ctx, spec.Dataset)
		if err != nil {
			return err
		}
		if done {
			if err := vols.Mount(ctx, spec.Dataset); err != nil {
				return err
			}
			o.logger.Info().Msg("volume already preseeded, skipping restore")
			o.record(types.MethodSkipped, types.StatusSkipped, "completion marker set", started, timer)
			o.notifyTemplate(ctx, types.NotifySkipped,
				fmt.Sprintf("%s already preseeded, restore skipped", spec.Service))
			return nil
		}
	}

	for _, method := range o.validMethods() {
		var attemptErr error
		switch method {
		case types.MethodSyncoid:
			attemptErr = o.attemptSyncoid(ctx)
		case types.MethodLocal:
			attemptErr = o.attemptLocal(ctx)
		case types.MethodRestic:
			attemptErr = o.attemptRestic(ctx)
		}

		if attemptErr == nil {
			if err := vols.MarkComplete(ctx, spec.Dataset); err != nil {
				return err
			}
			dur := timer.Duration()
			o.logger.Info().
				Str("method", string(method)).
				Dur("duration", dur).
				Msg("restore succeeded")
			o.record(method, types.StatusSuccess, "", started, timer)
			o.notifyTemplate(ctx, types.NotifySuccess,
				fmt.Sprintf("%s restored via %s in %s", spec.Service, method, dur.Round(time.Second)))
			return nil
		}

		o.logger.Warn().
			Err(attemptErr).
			Str("method", string(method)).
			Msg("restore strategy failed, falling through")
	}

	return o.exhausted(ctx, started, timer)
}

// exhausted handles the all-strategies-failed terminal state: leave a
// usable, marked volume behind and let the service start empty. A run
// timeout is one of the ways strategies get exhausted, so the bootstrap
// detaches from the run context's deadline.
func (o *Orchestrator) exhausted(ctx context.Context, started time.Time, timer *metrics.Timer) error {
	ctx = context.WithoutCancel(ctx)
	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	exists, err := vols.DatasetExists(ctx, spec.Dataset)
	if err != nil {
		return err
	}
	if !exists {
		// A strategy displaced the dataset and nothing recreated it.
		if err := vols.Create(ctx, spec.Dataset, spec.Mountpoint, spec.Properties); err != nil {
			return err
		}
	}
	if err := vols.Mount(ctx, spec.Dataset); err != nil {
		return err
	}

	// Mark complete even though nothing was restored. Without the
	// marker a later run would roll back to a snapshot predating this
	// bootstrap and quietly lose everything written since.
	if err := vols.MarkComplete(ctx, spec.Dataset); err != nil {
		return err
	}

	o.logger.Error().Msg("all restore strategies exhausted, service starts with empty volume")
	o.record(types.MethodAll, types.StatusFailure, "all strategies exhausted", started, timer)
	o.notifyTemplate(ctx, types.NotifyFailure,
		fmt.Sprintf("all restore strategies failed for %s, starting with empty volume", spec.Service))
	return nil
}

// validMethods filters the caller's preference order: unknown names are
// warned about and skipped, restic is dropped silently when no
// repository is configured. Order is preserved.
func (o *Orchestrator) validMethods() []types.RestoreMethod {
	var methods []types.RestoreMethod
	for _, m := range o.cfg.Spec.RestoreMethods {
		if !m.IsKnown() {
			o.logger.Warn().Str("method", string(m)).Msg("ignoring unknown restore method")
			continue
		}
		if m == types.MethodRestic && o.cfg.Store == nil {
			o.logger.Debug().Msg("restic unconfigured, dropping from method list")
			continue
		}
		methods = append(methods, m)
	}
	return methods
}

// record writes the outcome metric and journal entry. Failures here are
// logged, never propagated: the run result must not depend on
// observability plumbing.
func (o *Orchestrator) record(method types.RestoreMethod, status types.RunStatus, message string, started time.Time, timer *metrics.Timer) {
	spec := o.cfg.Spec

	if o.cfg.Metrics != nil {
		if err := o.cfg.Metrics.WriteOutcome(spec.Service, method, status, timer.Duration()); err != nil {
			o.logger.Error().Err(err).Msg("failed to write outcome metric")
		}
	}

	if o.cfg.Journal == nil {
		return
	}
	rec := &types.RunRecord{
		ID:         o.runID,
		Service:    spec.Service,
		Dataset:    spec.Dataset,
		Method:     method,
		Status:     status,
		Message:    message,
		StartedAt:  started,
		FinishedAt: o.now(),
	}
	if err := o.cfg.Journal.Append(rec); err != nil {
		o.logger.Error().Err(err).Msg("failed to append journal record")
	}
}

// notifyTemplate dispatches a notification, surviving an expired run
// context so that timeout outcomes still reach the operator.
func (o *Orchestrator) notifyTemplate(ctx context.Context, template types.NotificationTemplate, message string) {
	ctx = context.WithoutCancel(ctx)
	if err := o.notifier.Notify(ctx, template, o.cfg.Spec.Service, message); err != nil {
		o.logger.Warn().Err(err).Str("template", string(template)).Msg("notification failed")
	}
}
