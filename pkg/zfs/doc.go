/*
Package zfs wraps the zfs and zpool command-line tools with typed
operations on datasets, snapshots, properties, and pool health.

All commands flow through the Runner interface so that the restore
orchestrator can be tested against a scripted fake instead of a live
pool:

	mgr := zfs.NewManager(nil) // host zfs binary
	ok, err := mgr.DatasetExists(ctx, "tank/services/grafana")

The package also owns the completion-marker property (MarkerProperty).
Keeping the marker as a dataset user property instead of a sidecar file
ties its lifecycle to the dataset: destroying and recreating the dataset
clears the marker, which is exactly the disaster-recovery semantics the
orchestrator needs.
*/
package zfs
