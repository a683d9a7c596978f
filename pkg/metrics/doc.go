/*
Package metrics publishes restore outcomes for external observability.

Because preseed is a one-shot batch process there is nothing to scrape
while it runs; instead outcomes land in node_exporter textfile-collector
files, one per service:

	preseed_restore_status{service="grafana",method="syncoid"} 1
	preseed_restore_duration_seconds{service="grafana"} 34.2
	preseed_restore_completed_timestamp_seconds{service="grafana"} 1.7e+09

The method label distinguishes real strategies (syncoid, local, restic)
from pseudo-outcomes (skipped, pool_unhealthy, all).
*/
package metrics
