// Package pipeline compares original and round-tripped documents page by page.
//
// A Comparator handles one document: it locates the two PDFs, renders their
// pages, scores every page pair and copies the images the report links to.
// A BatchProcessor runs the Comparator over a whole manifest with bounded
// concurrency.
//
// Design decision: A document is the unit of failure. Whatever goes wrong
// while comparing one document, including a panic, ends up in that
// document's FileReport and never aborts the batch. Comparator.Compare
// therefore has no error return; callers inspect the report instead.
//
// Design decision: Documents are processed by goroutines bounded with
// errgroup.SetLimit rather than by worker processes. Rendering, the heavy
// part, already runs in child processes, and each worker holds at most one
// page pair in memory, capped in size by the image loader.
package pipeline
