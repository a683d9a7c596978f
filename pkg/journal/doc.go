// Package journal keeps a durable history of orchestrator runs in a
// local bbolt database. The metric file only ever shows the latest
// outcome per service; the journal answers "what happened on previous
// boots" for the history command and post-incident review.
package journal
