package database

import "errors"

var (
	// ErrNotFound is returned by Open when the database does not exist and
	// creation was not requested.
	ErrNotFound = errors.New("history database not found")

	// ErrEmptyRunID is returned when saving a run without an ID.
	ErrEmptyRunID = errors.New("run ID is empty")
)
