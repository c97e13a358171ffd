package autopost

import (
	"context"
	"sort"

	"github.com/autopost/autopost/model"
)

// NextUnconsumed returns the lexically first candidate the ledger has not consumed,
// or nil when every candidate is consumed. The consumed set is read once.
func NextUnconsumed(ctx context.Context, candidates []model.Asset, ledger Ledger) (*model.Asset, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	consumed, err := ledger.ConsumedAssetIDs(ctx)
	if err != nil {
		return nil, err
	}
	return pickUnconsumed(candidates, consumed, nil), nil
}

// pickUnconsumed scans candidates in identifier order and skips anything in consumed or exclude.
func pickUnconsumed(candidates []model.Asset, consumed, exclude map[string]struct{}) *model.Asset {
	sorted := make([]model.Asset, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ID < sorted[j].ID
	})

	for i := range sorted {
		if _, ok := consumed[sorted[i].ID]; ok {
			continue
		}
		if _, ok := exclude[sorted[i].ID]; ok {
			continue
		}
		asset := sorted[i]
		return &asset
	}
	return nil
}
