package imaging

import "errors"

// Image processing errors.
var (
	// ErrEmptyImage is returned when an image has zero width or height.
	ErrEmptyImage = errors.New("image is empty")

	// ErrImageTooSmall is returned when an image is smaller than the SSIM
	// window on either side. The window cannot be placed on such an image.
	ErrImageTooSmall = errors.New("image is smaller than the SSIM window")

	// ErrImageTooLarge is returned when an image declares more pixels than
	// Limits.MaxPixels. Renders below that are decoded and downscaled.
	ErrImageTooLarge = errors.New("image is too large to decode")
)
