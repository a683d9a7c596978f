package orchestrator

import (
	"context"
)

// Report is a read-only view of a volume's restore-related state.
type Report struct {
	DatasetExists bool
	Mounted       bool
	Complete      bool
	Snapshots     int
}

// Verify inspects the volume without mutating anything. Operators use it
// to confirm the invariants the orchestrator maintains: the completion
// marker is set, the volume is mounted, and at least one snapshot
// exists.
func (o *Orchestrator) Verify(ctx context.Context) (*Report, error) {
	spec := o.cfg.Spec
	vols := o.cfg.Volumes

	exists, err := vols.DatasetExists(ctx, spec.Dataset)
	if err != nil {
		return nil, err
	}
	if !exists {
		return &Report{}, nil
	}

	report := &Report{DatasetExists: true}

	mounted, err := vols.GetProperty(ctx, spec.Dataset, "mounted")
	if err != nil {
		return nil, err
	}
	report.Mounted = mounted == "yes"

	report.Complete, err = vols.IsComplete(ctx, spec.Dataset)
	if err != nil {
		return nil, err
	}

	snaps, err := vols.Snapshots(ctx, spec.Dataset)
	if err != nil {
		return nil, err
	}
	report.Snapshots = len(snaps)

	return report, nil
}
