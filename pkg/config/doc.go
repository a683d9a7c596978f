// Package config loads the per-volume YAML configuration: volume
// identity, restore method order, dataset properties, the replication
// topology table, and restic repository settings, plus operational paths
// for locks, metrics, and the run journal.
package config
