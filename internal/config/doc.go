// Package config provides configuration structures and utilities for pagediff.
// It defines the input and output locations of a comparison run, the
// rendering and scoring settings, and the optional YAML configuration file
// that supplies defaults for them.
package config
