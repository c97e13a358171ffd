package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/autopost/autopost/model"
)

// DirSource serves images from a single, non-recursive directory.
type DirSource struct {
	Root string
}

func NewDirSource(root string) *DirSource {
	return &DirSource{Root: root}
}

func (d *DirSource) ListCandidates(ctx context.Context) ([]model.Asset, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []model.Asset{}, nil
		}
		return nil, fmt.Errorf("list %s: %w", d.Root, err)
	}

	candidates := make([]model.Asset, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !IsSupported(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		candidates = append(candidates, model.Asset{
			ID:           entry.Name(),
			Location:     filepath.Join(d.Root, entry.Name()),
			Size:         info.Size(),
			DiscoveredAt: info.ModTime().UTC(),
		})
	}
	sortByID(candidates)
	return candidates, nil
}

func (d *DirSource) Open(_ context.Context, asset model.Asset) (io.ReadCloser, error) {
	if asset.ID == "" || filepath.Base(asset.ID) != asset.ID {
		return nil, fmt.Errorf("invalid asset id %q", asset.ID)
	}
	return os.Open(filepath.Join(d.Root, asset.ID))
}
