package imaging

import (
	"bufio"
	"fmt"
	"image"
	_ "image/png" // Page renders are PNG files
	"io"
	"os"

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxSide is the longest side, in pixels, an image may have before
	// it is downscaled. 4000 px keeps an A4 page well above the detail level
	// of a 150 DPI render while capping the memory of a single comparison.
	DefaultMaxSide = 4000

	// DefaultMaxPixels is the largest declared width*height decoded at all.
	// Decoding allocates up to 4 bytes per pixel before downscaling, so 256M
	// pixels is about 1 GiB per page. A4 at 600 DPI is under 35M pixels.
	DefaultMaxPixels int64 = 1 << 28
)

// Limits bounds the images Load accepts and returns.
type Limits struct {
	// MaxSide is the longest side after downscaling.
	// A non-positive value disables downscaling.
	MaxSide int

	// MaxPixels is the largest declared width*height that is decoded.
	// Larger images fail with ErrImageTooLarge before any pixel is read.
	// A non-positive value means DefaultMaxPixels.
	MaxPixels int64
}

// DefaultLimits returns the limits used when the caller sets none.
func DefaultLimits() Limits {
	return Limits{MaxSide: DefaultMaxSide, MaxPixels: DefaultMaxPixels}
}

func (l Limits) maxPixels() int64 {
	if l.MaxPixels <= 0 {
		return DefaultMaxPixels
	}
	return l.MaxPixels
}

// Load decodes the image at path and normalizes it with Normalize.
// The header is checked against limits first, so an oversized image is
// rejected with ErrImageTooLarge instead of being allocated.
func Load(path string, limits Limits) (*image.Gray, error) {
	f, err := os.Open(path) //nolint:gosec // Paths come from our own render directories
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	if _, err := decodeConfig(f, path, limits.maxPixels()); err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind image: %w", err)
	}

	img, _, err := image.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}

	return Normalize(img, limits.MaxSide), nil
}

// decodeConfig reads the image header and rejects images above maxPixels.
func decodeConfig(r io.Reader, path string, maxPixels int64) (image.Config, error) {
	cfg, _, err := image.DecodeConfig(bufio.NewReader(r))
	if err != nil {
		return image.Config{}, fmt.Errorf("failed to decode image header %s: %w", path, err)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return image.Config{}, fmt.Errorf("%w: %s is %dx%d, limit is %d pixels",
			ErrImageTooLarge, path, cfg.Width, cfg.Height, maxPixels)
	}
	return cfg, nil
}

// Normalize converts img to grayscale and downscales it so that neither side
// exceeds maxSide. A non-positive maxSide disables downscaling.
// The returned image always has its origin at (0, 0).
func Normalize(img image.Image, maxSide int) *image.Gray {
	gray := toGray(img)

	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	nw, nh := scaledSize(w, h, maxSide)
	if nw == w && nh == h {
		return gray
	}

	dst := image.NewGray(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), gray, gray.Bounds(), draw.Src, nil)
	return dst
}

// scaledSize returns the dimensions after applying the maxSide cap.
// The longer side becomes exactly maxSide and the shorter side is scaled
// by the same factor, truncated.
func scaledSize(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}

	if w >= h {
		scale := float64(maxSide) / float64(w)
		return maxSide, max(1, int(float64(h)*scale))
	}
	scale := float64(maxSide) / float64(h)
	return max(1, int(float64(w)*scale)), maxSide
}

// toGray converts img to an 8-bit grayscale image anchored at (0, 0).
//
// RGB sources use the fixed-point ITU-R 601-2 luma transform
// L = (19595 R + 38470 G + 7471 B + 0x8000) >> 16 on 8-bit channels and ignore
// alpha, which is what rasterizers and common imaging tools use for "L" mode.
func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))

	switch src := img.(type) {
	case *image.RGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			out := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				out[x] = luma(row[4*x], row[4*x+1], row[4*x+2])
			}
		}
	case *image.NRGBA:
		for y := 0; y < h; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			out := dst.Pix[y*dst.Stride:]
			for x := 0; x < w; x++ {
				out[x] = luma(row[4*x], row[4*x+1], row[4*x+2])
			}
		}
	default:
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	}

	return dst
}

func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}
