// Package health provides the storage-pool precheck that gates every
// orchestrator run. Checkers return a Result rather than an error so
// callers can log the full message and duration regardless of outcome.
package health
