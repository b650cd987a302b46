package imaging

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// CompareFiles loads the two page images at pathA and pathB and compares them.
//
// Renders of unchanged pages are usually byte-identical, so both files are
// hashed first. When the digests match, the score is exactly 1.0 and the
// difference map is blank, without decoding any pixels. The result is the
// same one Compare would return for identical inputs.
func CompareFiles(pathA, pathB string, limits Limits) (Result, error) {
	same, err := sameContent(pathA, pathB)
	if err != nil {
		return Result{}, err
	}
	if same {
		return identicalResult(pathA, limits)
	}

	a, err := Load(pathA, limits)
	if err != nil {
		return Result{}, err
	}
	b, err := Load(pathB, limits)
	if err != nil {
		return Result{}, err
	}
	return Compare(a, b)
}

// Digest returns the BLAKE2b-256 digest of the file at path.
func Digest(path string) ([]byte, error) {
	f, err := os.Open(path) //nolint:gosec // Paths come from our own render directories
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("failed to hash image: %w", err)
	}
	return h.Sum(nil), nil
}

// sameContent reports whether the two files have identical bytes.
func sameContent(pathA, pathB string) (bool, error) {
	da, err := Digest(pathA)
	if err != nil {
		return false, err
	}
	db, err := Digest(pathB)
	if err != nil {
		return false, err
	}
	return bytes.Equal(da, db), nil
}

// identicalResult builds the result of comparing a file with itself.
// Only the header is decoded to size the blank difference map.
func identicalResult(path string, limits Limits) (Result, error) {
	f, err := os.Open(path) //nolint:gosec // Paths come from our own render directories
	if err != nil {
		return Result{}, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	cfg, err := decodeConfig(f, path, limits.maxPixels())
	if err != nil {
		return Result{}, err
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return Result{}, ErrEmptyImage
	}

	w, h := scaledSize(cfg.Width, cfg.Height, limits.MaxSide)
	if w < WindowSize || h < WindowSize {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrImageTooSmall, w, h)
	}

	return Result{
		Score: 1.0,
		Diff:  image.NewGray(image.Rect(0, 0, w, h)),
	}, nil
}
