// Package log provides structured logging for preseed using zerolog.
//
// A single global logger is initialized via Init and refined with child
// loggers carrying component, service, dataset, or run_id fields. Runs
// launched by the service supervisor use JSON output so log lines land in
// the unit journal as structured records; interactive runs get console
// output.
package log
