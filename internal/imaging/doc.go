// Package imaging loads rendered page images and scores their similarity.
//
// The package has two halves:
//   - Load and Normalize turn a page render into an 8-bit grayscale image whose
//     longer side is capped, so that memory use per page stays bounded.
//   - Compare computes the structural similarity index (SSIM) of two grayscale
//     images together with a per-pixel difference map for the report.
//
// Design decision: SSIM is implemented here instead of pulling in a general
// image-diff library because the score must match the reference
// implementation (scikit-image defaults) bit for bit where possible, and
// because the streaming row cache keeps a 4000x4000 comparison within a few
// megabytes of working memory. Resampling is delegated to golang.org/x/image.
package imaging
