// Package log provides the pagediff loggers, built on top of the standard
// slog package.
//
// This package extends slog to provide:
//   - Shortening of scratch and report paths in log output
//   - Configurable log levels with verbose mode support
//   - Text or JSON output with the same behavior
//
// # Path Shortening
//
// A run touches thousands of files below a handful of directories. The
// PathHandler replaces those directory prefixes in string and error values
// with a short variable, so a line reads
//
//	msg="failed to remove scratch renders" dir=$WORK/orig_png/report
//
// instead of repeating the absolute work directory on every line.
//
// # Usage
//
//	logger := log.NewLogger(os.Stderr, verbose,
//	    log.Base{Name: "WORK", Dir: cfg.WorkDir},
//	    log.Base{Name: "REPORT", Dir: filepath.Dir(cfg.ReportPath)},
//	)
//	slog.SetDefault(logger)
package log
