// Package main provides the entry point for the pagediff CLI.
//
// pagediff renders original office documents and their round-tripped
// counterparts to page images, scores every page pair with SSIM and writes
// an HTML, JSON and Markdown report. The exit status is non-zero when any
// document fails or falls below the threshold.
//
// Usage:
//
//	pagediff compare --original-dir orig --roundtrip-dir rt --work-dir work --report out/report.html
//	pagediff history
//
// See --help for all available options.
package main

// main is the entry point for pagediff.
func main() {
	Execute()
}
