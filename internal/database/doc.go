// Package database provides SQLite-based storage for pagediff run history.
//
// This package implements the HistoryDB, which stores:
//   - One row per comparison run with its threshold and summary counts
//   - The full report of every document in a run, as JSON
//
// The history command uses it to diff the latest run against an earlier one.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. WAL mode lets a history query run while a compare run is writing
package database
