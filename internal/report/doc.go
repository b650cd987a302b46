// Package report turns comparison results into reports.
//
// This package contains writers for different output formats:
//   - HTMLWriter: self-contained HTML page with page images, for people
//   - JSONWriter: every FileReport with its pages, for tools
//   - MarkdownWriter: summary and worst documents, for CI step summaries
//   - TextWriter: short plain-text summary for the terminal
//
// Design decision: We separate report writing from report data structures
// (which are in the model package) to follow the single responsibility
// principle. Classification, ordering and counting live here too, in
// Classify, Sort and Summarize, so that every writer agrees on them.
//
// Writers implement the Writer interface, allowing them to be used
// interchangeably and composed for multi-format output.
package report
