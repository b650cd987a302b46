// Package render drives the external programs that turn documents into page
// images: an office suite converts documents to PDF, and a PDF rasterizer
// renders each PDF page to a PNG file.
//
// Design decision: Both tools run as child processes behind the Runner
// interface rather than through cgo bindings. This keeps the binary CGO-free,
// lets every invocation carry its own timeout so that one stuck document
// cannot hang a batch, and lets tests substitute a fake Runner that writes
// fixture files instead of spawning processes.
package render
