package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/nao1215/pagediff/internal/model"
	"github.com/nao1215/pagediff/internal/render"
)

// ManifestFile is the name of the manifest the round-trip tool writes into
// its output directory.
const ManifestFile = "manifest.json"

// LoadManifest reads a manifest file.
// Entries keep their file order. Entries without a name and duplicate names
// are rejected, since two entries for one document would share its output
// directories.
func LoadManifest(path string) ([]model.ManifestEntry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Path is given by the user
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var entries []model.ManifestEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidManifest, err)
	}

	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", ErrInvalidManifest, i)
		}
		if _, ok := seen[e.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate entry %q", ErrInvalidManifest, e.Name)
		}
		seen[e.Name] = struct{}{}
	}
	return entries, nil
}

// Discover returns the documents to compare.
// When roundtripDir contains a manifest it is authoritative. Otherwise every
// document in originalDir with one of the given extensions is listed and
// assumed to have round-tripped successfully. The second return value tells
// whether a manifest was found.
func Discover(originalDir, roundtripDir string, exts []string) ([]model.ManifestEntry, bool, error) {
	entries, err := LoadManifest(filepath.Join(roundtripDir, ManifestFile))
	if err == nil {
		return entries, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	sources, err := render.ListSources(originalDir, exts)
	if err != nil {
		return nil, false, err
	}
	entries = make([]model.ManifestEntry, len(sources))
	for i, src := range sources {
		entries[i] = model.ManifestEntry{Name: filepath.Base(src), OK: true}
	}
	return entries, false, nil
}
