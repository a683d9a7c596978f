// Package types defines the shared domain types for preseed: volume
// specifications, restore methods, replication targets, run records, and
// notification templates. It has no dependencies on other preseed
// packages so that every component can exchange these values freely.
package types
