package imaging

import (
	"fmt"
	"image"
)

// SSIM parameters. These are the scikit-image defaults for uint8 input,
// which the historical regression baselines were produced with.
const (
	// WindowSize is the side of the square uniform window.
	WindowSize = 7

	k1        = 0.01
	k2        = 0.03
	dataRange = 255.0

	// padValue fills the area added when two images differ in size.
	padValue = 0xff
)

// Result is the outcome of comparing two page images.
type Result struct {
	// Score is the mean structural similarity in [0, 1].
	// 1.0 means the images are identical under the metric.
	Score float64

	// Diff visualizes dissimilarity: each pixel is 255*(1-S) of the local
	// SSIM value S, clipped to [0, 255]. It is for display only.
	Diff *image.Gray
}

// Compare computes the SSIM score and difference map of a and b.
//
// Images of different sizes are first padded with Pad. The comparison is
// deterministic: the same pair always yields the same result.
func Compare(a, b *image.Gray) (Result, error) {
	if a == nil || b == nil || a.Rect.Empty() || b.Rect.Empty() {
		return Result{}, ErrEmptyImage
	}

	a, b = Pad(a, b)

	w, h := a.Rect.Dx(), a.Rect.Dy()
	if w < WindowSize || h < WindowSize {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, w, h)
	}

	score, diff := ssim(a, b)
	return Result{Score: clamp01(score), Diff: diff}, nil
}

// Pad returns a and b unchanged when they already have the same size.
// Otherwise it returns copies of both, grown to the element-wise maximum
// of their dimensions, filled with white and with the original content
// anchored at the top-left corner.
//
// Padding keeps small rendering differences (a page that is a few pixels
// taller) from aborting the comparison, at the cost of scoring the padded
// strip as a difference.
func Pad(a, b *image.Gray) (*image.Gray, *image.Gray) {
	a, b = rebase(a), rebase(b)
	if a.Rect.Size() == b.Rect.Size() {
		return a, b
	}

	w := max(a.Rect.Dx(), b.Rect.Dx())
	h := max(a.Rect.Dy(), b.Rect.Dy())
	return padTo(a, w, h), padTo(b, w, h)
}

// padTo copies src into a white w x h canvas.
func padTo(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for i := range dst.Pix {
		dst.Pix[i] = padValue
	}

	sw, sh := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < sh; y++ {
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+sw], src.Pix[y*src.Stride:y*src.Stride+sw])
	}
	return dst
}

// rebase returns g with its origin at (0, 0), copying only when needed.
func rebase(g *image.Gray) *image.Gray {
	if g.Rect.Min == (image.Point{}) {
		return g
	}

	w, h := g.Rect.Dx(), g.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		off := g.PixOffset(g.Rect.Min.X, g.Rect.Min.Y+y)
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+w], g.Pix[off:off+w])
	}
	return dst
}

// windowSums holds the horizontal window sums of one source row for the five
// moments SSIM needs. All inputs are integers, so the sums are exact in
// float64 and sliding the window never accumulates rounding error.
type windowSums struct {
	row              int
	x, y, xx, yy, xy []float64
}

// rowCache keeps the horizontal sums of the most recent source rows.
// Vertical windows only ever touch WindowSize consecutive rows, so a ring of
// WindowSize+1 slots never evicts a row that is still needed.
type rowCache struct {
	a, b  *image.Gray
	slots []windowSums
	pad   []int
}

func newRowCache(a, b *image.Gray) *rowCache {
	w := a.Rect.Dx()
	c := &rowCache{
		a:     a,
		b:     b,
		slots: make([]windowSums, WindowSize+1),
		pad:   make([]int, w+WindowSize-1),
	}
	for i := range c.slots {
		c.slots[i] = windowSums{
			row: -1,
			x:   make([]float64, w),
			y:   make([]float64, w),
			xx:  make([]float64, w),
			yy:  make([]float64, w),
			xy:  make([]float64, w),
		}
	}

	// Column index of every position of the reflected row.
	r := WindowSize / 2
	for i := range c.pad {
		c.pad[i] = reflect(i-r, w)
	}
	return c
}

// get returns the horizontal sums of source row.
func (c *rowCache) get(row int) *windowSums {
	s := &c.slots[row%len(c.slots)]
	if s.row == row {
		return s
	}
	s.row = row

	w := c.a.Rect.Dx()
	pa := c.a.Pix[row*c.a.Stride:]
	pb := c.b.Pix[row*c.b.Stride:]

	var sx, sy, sxx, syy, sxy float64
	add := func(col int, sign float64) {
		va := float64(pa[col])
		vb := float64(pb[col])
		sx += sign * va
		sy += sign * vb
		sxx += sign * va * va
		syy += sign * vb * vb
		sxy += sign * va * vb
	}

	for i := 0; i < WindowSize; i++ {
		add(c.pad[i], 1)
	}
	for col := 0; col < w; col++ {
		if col > 0 {
			add(c.pad[col-1], -1)
			add(c.pad[col+WindowSize-1], 1)
		}
		s.x[col], s.y[col] = sx, sy
		s.xx[col], s.yy[col], s.xy[col] = sxx, syy, sxy
	}
	return s
}

// ssim computes the mean SSIM over the interior of the map and the
// difference image over the full map.
func ssim(a, b *image.Gray) (float64, *image.Gray) {
	w, h := a.Rect.Dx(), a.Rect.Dy()
	r := WindowSize / 2

	n := float64(WindowSize * WindowSize)
	covNorm := n / (n - 1)
	c1 := (k1 * dataRange) * (k1 * dataRange)
	c2 := (k2 * dataRange) * (k2 * dataRange)

	cache := newRowCache(a, b)
	diff := image.NewGray(image.Rect(0, 0, w, h))

	sx := make([]float64, w)
	sy := make([]float64, w)
	sxx := make([]float64, w)
	syy := make([]float64, w)
	sxy := make([]float64, w)

	var total float64
	for y := 0; y < h; y++ {
		clear(sx)
		clear(sy)
		clear(sxx)
		clear(syy)
		clear(sxy)
		for k := -r; k <= r; k++ {
			s := cache.get(reflect(y+k, h))
			for col := 0; col < w; col++ {
				sx[col] += s.x[col]
				sy[col] += s.y[col]
				sxx[col] += s.xx[col]
				syy[col] += s.yy[col]
				sxy[col] += s.xy[col]
			}
		}

		interiorRow := y >= r && y < h-r
		out := diff.Pix[y*diff.Stride:]
		for col := 0; col < w; col++ {
			ux := sx[col] / n
			uy := sy[col] / n
			vx := covNorm * (sxx[col]/n - ux*ux)
			vy := covNorm * (syy[col]/n - uy*uy)
			vxy := covNorm * (sxy[col]/n - ux*uy)

			a1 := 2*ux*uy + c1
			a2 := 2*vxy + c2
			b1 := ux*ux + uy*uy + c1
			b2 := vx + vy + c2
			s := (a1 * a2) / (b1 * b2)

			out[col] = diffPixel(s)
			if interiorRow && col >= r && col < w-r {
				total += s
			}
		}
	}

	count := float64((h - 2*r) * (w - 2*r))
	return total / count, diff
}

// reflect maps an out-of-range index back into [0, n) by mirroring about the
// edge, repeating the edge sample (d c b a | a b c d | d c b a).
// It assumes the overshoot is smaller than n.
func reflect(i, n int) int {
	if i < 0 {
		return -i - 1
	}
	if i >= n {
		return 2*n - i - 1
	}
	return i
}

// diffPixel converts a local SSIM value into a difference intensity.
func diffPixel(s float64) uint8 {
	v := 255 * (1 - s)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
