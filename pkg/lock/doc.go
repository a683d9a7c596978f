// Package lock serializes orchestrator runs per dataset. A lock is a
// JSON file recording the owning process, run ID, dataset, and start
// time; liveness is checked against the recorded PID rather than mere
// file presence, so locks abandoned by crashed runs are recovered
// automatically.
package lock
