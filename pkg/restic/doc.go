// Package restic wraps the restic command-line tool for object-store
// restores: a short-timeout reachability probe (cat config) and a
// restore of the latest archived snapshot for configured sub-paths, with
// a configurable retry-after-delay policy. Repository credentials are
// loaded from an optional environment file.
package restic
