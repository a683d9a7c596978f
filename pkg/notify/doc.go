// Package notify dispatches restore outcomes to an external
// notification router by symbolic template name (preseed-success,
// preseed-skipped, preseed-failure, preseed-critical-failure). The
// router owns channels and formatting; preseed only hands over the
// template, service, and a human-readable message.
package notify
