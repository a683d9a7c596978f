/*
Package replication resolves replication topology and pulls dataset
replicas from remote hosts.

The topology is a table keyed by dataset-path prefix. Resolve walks the
queried path from leaf to root and stops at the first entry found, which
gives nearest-ancestor inheritance: a service volume under
"tank/services/grafana" is covered by an entry on "tank/services" without
needing one of its own. The remote dataset is the entry's dataset plus
the unmatched path suffix.

The Syncoid type wraps the syncoid command for the actual transfer.
*/
package replication
