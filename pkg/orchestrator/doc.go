/*
Package orchestrator implements the restore decision state machine that
runs once per volume before its service starts.

# State machine

	Checking ──▶ pool unhealthy? ──▶ abort (error exit)
	    │
	    ▼
	lock held by live run? ──▶ abort (error exit)
	stale lock? ──▶ discard, proceed
	    │
	    ▼
	completion marker set? ──▶ AlreadyComplete (mount, skip metric)
	    │
	    ▼
	for each method in caller order:
	    syncoid ──▶ rename-aside guard, pull, undo on failure
	    local   ──▶ protective snapshot, hold, rollback
	    restic  ──▶ probe, recreate if displaced, restore, retry once
	    │
	    ├─ success ──▶ marker, metric, notify, done
	    ▼
	ExhaustedFailed ──▶ recreate empty volume, marker, metric, notify,
	                    exit 0 anyway

Every terminal state writes a textfile-collector metric and a journal
record; failure states additionally dispatch a notification. The run is
deliberately fail-open: an exhausted run leaves a mounted, marked, empty
volume and exits 0 so the dependent service can start. Detecting the
resulting data loss is the operator's job via the metric and
notification hooks, not the orchestrator's job to block on.

# Invariants

  - At most one run per dataset (run lock, liveness-checked by PID).
  - A second invocation after any terminal state is a cheap no-op until
    the dataset is destroyed and recreated (marker is a dataset user
    property, so destroy clears it).
  - A successfully restored volume always has at least one snapshot.
  - A failed strategy leaves the volume no worse than it found it: the
    graveyard rename is undone before falling through.

All collaborators enter through interfaces so the whole machine is
exercised in tests against in-memory fakes.
*/
package orchestrator
