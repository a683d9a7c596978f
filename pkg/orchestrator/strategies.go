package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tarnmoor/preseed/pkg/types"
)

// ErrNoSnapshot fails the local rollback strategy when the dataset has
// nothing to roll back to.
var ErrNoSnapshot = errors.New("no snapshot to roll back to")

// attemptSyncoid pulls the latest replica from the resolved remote
// dataset. If the local dataset exists but is effectively empty (zero
// snapshots, no or negligible data) it is renamed aside first instead of
// destroyed, so a failed transfer can be undone.
func (o *Orchestrator) attemptSyncoid(ctx context.Context) error {
	if o.cfg.Replication == nil {
		return errors.New("no replication target resolved for dataset")
	}

	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	graveyard := ""
	exists, err := vols.DatasetExists(ctx, spec.Dataset)
	if err != nil {
		return err
	}
	if exists {
		displace, err := o.safeToDisplace(ctx)
		if err != nil {
			return err
		}
		if displace {
			graveyard = fmt.Sprintf("%s-graveyard-%d", spec.Dataset, o.now().Unix())
			o.logger.Info().Str("graveyard", graveyard).Msg("renaming empty dataset aside for replica pull")
			if err := vols.Rename(ctx, spec.Dataset, graveyard); err != nil {
				return err
			}
		}
	}

	if err := o.cfg.Puller.Pull(ctx, o.cfg.Replication, spec.Dataset); err != nil {
		if graveyard != "" {
			if uerr := o.undoGraveyard(ctx, graveyard); uerr != nil {
				return fmt.Errorf("pull failed (%v); graveyard undo failed: %w", err, uerr)
			}
		}
		return err
	}

	// The transport does not preserve locally declared properties.
	for _, k := range sortedPropKeys(spec.Properties) {
		if err := vols.SetProperty(ctx, spec.Dataset, k, spec.Properties[k]); err != nil {
			o.logger.Warn().Err(err).Str("property", k).Msg("failed to re-apply dataset property")
		}
	}

	if err := o.finalizeRestored(ctx); err != nil {
		return err
	}

	if graveyard != "" {
		// The replica is in place and snapshotted; the aside copy held
		// nothing worth keeping.
		if err := vols.Destroy(ctx, graveyard, true); err != nil {
			o.logger.Warn().Err(err).Str("graveyard", graveyard).Msg("failed to destroy graveyard dataset")
		}
	}
	return nil
}

// safeToDisplace decides whether the existing dataset may be renamed
// aside: only with zero snapshots and an empty mount or logical size
// under the configured threshold. The size cutoff guards against racing
// the scheduled-snapshot subsystem on a dataset that just received data.
func (o *Orchestrator) safeToDisplace(ctx context.Context) (bool, error) {
	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	snaps, err := vols.Snapshots(ctx, spec.Dataset)
	if err != nil {
		return false, err
	}
	if len(snaps) > 0 {
		return false, nil
	}

	empty, err := mountpointEmpty(spec.Mountpoint)
	if err != nil {
		o.logger.Warn().Err(err).Msg("could not inspect mountpoint")
	} else if empty {
		return true, nil
	}

	used, err := vols.UsedBytes(ctx, spec.Dataset)
	if err != nil {
		return false, err
	}
	return used < o.graveyardMax, nil
}

// undoGraveyard puts the renamed-aside dataset back under its original
// name, clearing any partial receive left at that name first. The undo
// must run even when the run timeout killed the pull, so it detaches
// from the run context's deadline.
func (o *Orchestrator) undoGraveyard(ctx context.Context, graveyard string) error {
	ctx = context.WithoutCancel(ctx)
	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	exists, err := vols.DatasetExists(ctx, spec.Dataset)
	if err != nil {
		return err
	}
	if exists {
		if err := vols.Destroy(ctx, spec.Dataset, true); err != nil {
			return err
		}
	}
	if err := vols.Rename(ctx, graveyard, spec.Dataset); err != nil {
		return err
	}
	o.logger.Info().Str("graveyard", graveyard).Msg("restored dataset from graveyard after failed pull")
	return nil
}

// attemptLocal rolls the dataset back to its most recent snapshot,
// preferring snapshots created by the scheduled-snapshot subsystem.
func (o *Orchestrator) attemptLocal(ctx context.Context) error {
	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	exists, err := vols.DatasetExists(ctx, spec.Dataset)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("dataset %s does not exist", spec.Dataset)
	}

	snaps, err := vols.Snapshots(ctx, spec.Dataset)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		return ErrNoSnapshot
	}

	target := chooseRollbackTarget(snaps)
	o.logger.Info().Str("snapshot", target.FullName()).Msg("rolling back to local snapshot")

	// Snapshot the current state first so the rollback never silently
	// discards it.
	if err := o.takeProtectiveSnapshot(ctx); err != nil {
		return err
	}

	// Hold the target so the pruning subsystem cannot destroy it
	// between selection and rollback.
	full := target.FullName()
	if err := vols.Hold(ctx, full); err != nil {
		return err
	}
	rbErr := vols.Rollback(ctx, full)
	if relErr := vols.Release(ctx, full); relErr != nil {
		o.logger.Warn().Err(relErr).Str("snapshot", full).Msg("failed to release hold")
	}
	if rbErr != nil {
		return rbErr
	}

	return o.finalizeRestored(ctx)
}

// chooseRollbackTarget returns the newest snapshot, preferring ones from
// the scheduled-snapshot subsystem over ad-hoc ones. snaps is oldest
// first and non-empty.
func chooseRollbackTarget(snaps []types.Snapshot) types.Snapshot {
	for i := len(snaps) - 1; i >= 0; i-- {
		if strings.Contains(snaps[i].Name, "autosnap") {
			return snaps[i]
		}
	}
	return snaps[len(snaps)-1]
}

// attemptRestic restores the configured sub-paths from the object-store
// repository into the mountpoint.
func (o *Orchestrator) attemptRestic(ctx context.Context) error {
	if o.cfg.Store == nil {
		return errors.New("object store not configured")
	}

	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	// Cheap reachability probe first; a dead repository should cost
	// seconds, not a full failed restore attempt.
	if err := o.cfg.Store.Check(ctx); err != nil {
		return err
	}

	exists, err := vols.DatasetExists(ctx, spec.Dataset)
	if err != nil {
		return err
	}
	if !exists {
		// An earlier strategy displaced the dataset; restic needs a
		// clean target to restore into.
		if err := vols.Create(ctx, spec.Dataset, spec.Mountpoint, spec.Properties); err != nil {
			return err
		}
	}
	if err := vols.Mount(ctx, spec.Dataset); err != nil {
		return err
	}

	if err := o.cfg.Store.Restore(ctx, spec.Mountpoint); err != nil {
		return err
	}

	return o.finalizeRestored(ctx)
}

// finalizeRestored runs the common post-restore steps: mount, ownership,
// and the no-snapshot invariant.
func (o *Orchestrator) finalizeRestored(ctx context.Context) error {
	spec := o.cfg.Spec

	if err := o.cfg.Volumes.Mount(ctx, spec.Dataset); err != nil {
		return err
	}
	if err := o.fixOwnership(); err != nil {
		o.logger.Warn().Err(err).Msg("failed to fix ownership")
	}
	return o.ensureProtectiveSnapshot(ctx)
}

// ensureProtectiveSnapshot enforces the invariant that a successfully
// restored volume is never left with zero snapshots, then prunes old
// protective snapshots beyond the most recent two.
func (o *Orchestrator) ensureProtectiveSnapshot(ctx context.Context) error {
	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	snaps, err := vols.Snapshots(ctx, spec.Dataset)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		if err := o.takeProtectiveSnapshot(ctx); err != nil {
			return err
		}
	}
	o.pruneProtective(ctx)
	return nil
}

func (o *Orchestrator) takeProtectiveSnapshot(ctx context.Context) error {
	name := fmt.Sprintf("%s%d", ProtectivePrefix, o.now().Unix())
	o.logger.Info().Str("snapshot", name).Msg("taking protective snapshot")
	return o.cfg.Volumes.CreateSnapshot(ctx, o.cfg.Spec.Dataset, name)
}

// pruneProtective destroys protective snapshots beyond the newest
// ProtectiveKeep. Pruning is housekeeping; failures only warn.
func (o *Orchestrator) pruneProtective(ctx context.Context) {
	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	snaps, err := vols.Snapshots(ctx, spec.Dataset)
	if err != nil {
		o.logger.Warn().Err(err).Msg("could not list snapshots for pruning")
		return
	}

	var protective []types.Snapshot
	for _, s := range snaps {
		if strings.HasPrefix(s.Name, ProtectivePrefix) {
			protective = append(protective, s)
		}
	}
	if len(protective) <= ProtectiveKeep {
		return
	}

	for _, s := range protective[:len(protective)-ProtectiveKeep] {
		if err := vols.DestroySnapshot(ctx, s.FullName()); err != nil {
			o.logger.Warn().Err(err).Str("snapshot", s.FullName()).Msg("failed to prune protective snapshot")
		}
	}
}

func sortedPropKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
