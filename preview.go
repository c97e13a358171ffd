package autopost

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/model"
)

// ErrAssetNotFound is returned when a previewed asset is not among the current candidates.
var ErrAssetNotFound = errors.New("asset not found")

// Preview is a caption generated for an asset without publishing it.
type Preview struct {
	Asset   model.Asset         `json:"asset"`
	Caption model.CaptionResult `json:"caption"`
}

// PreviewCaption generates the caption the next cycle would use for assetID, or for the
// next unconsumed asset when assetID is empty. It never publishes and never writes to the
// ledger, so remote caption failures only show up as a template caption. A nil preview
// with a nil error means no unconsumed asset is left.
func (a *Autopost) PreviewCaption(ctx context.Context, cnf *config.Configuration, assetID string) (*Preview, error) {
	if cnf == nil {
		return nil, &ConfigurationError{Err: errors.New("configuration is required")}
	}
	if a.ledger == nil || a.source == nil {
		return nil, &ConfigurationError{Err: errors.New("ledger and asset source are required")}
	}

	ctx, span := tracer.Start(ctx, "PreviewCaption", trace.WithAttributes(attribute.String("asset.id", assetID)))
	defer span.End()

	candidates, err := a.source.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}

	var asset *model.Asset
	if assetID == "" {
		if asset, err = NextUnconsumed(ctx, candidates, a.ledger); err != nil {
			return nil, fmt.Errorf("select asset: %w", err)
		}
		if asset == nil {
			return nil, nil
		}
	} else {
		for i := range candidates {
			if candidates[i].ID == assetID {
				asset = &candidates[i]
				break
			}
		}
		if asset == nil {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
		}
	}

	captions := NewCaptionProvider(a.captionBackend, cnf, nil, a.logger)
	captions.now = a.now
	return &Preview{Asset: *asset, Caption: captions.Generate(ctx, *asset)}, nil
}
