// Package types defines the records, snapshot document, configuration and
// standard errors shared by the sitesync packages.
//
// A Snapshot is the single document the site build reads: merged content
// arrays keyed by table, the syncMetadata block used to detect drift, and the
// raw record cache used for diffing on the next run.
package types
