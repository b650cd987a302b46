// Package model defines the core data structures used throughout pagediff.
//
// This package contains the following main types:
//   - PageResult: The similarity score of one rendered page pair
//   - FileReport: The comparison result of one document
//   - ManifestEntry: One line of the upstream round-trip manifest
//   - Status and ErrorKind: Classification of a FileReport
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The pipeline, report and database packages all need these
// types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage. The JSON field names are the contract consumed by CI gating
// scripts and must stay stable.
package model
