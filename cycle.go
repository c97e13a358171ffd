/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package autopost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/model"
)

// RunCycle publishes up to cnf.MaxPostsPerCycle assets. Each attempt is recorded in the
// ledger before the next asset is selected.
//
// An empty slice with a nil error means nothing was left to publish. A *LedgerWriteError
// aborts the cycle and is returned together with the outcomes recorded before it.
// Cancellation is honoured between assets: the outcomes so far are returned with ctx.Err().
// Assets attempted earlier in the same cycle are not selected again even when they failed.
func (a *Autopost) RunCycle(ctx context.Context, cnf *config.Configuration) ([]model.PublishOutcome, error) {
	if cnf == nil {
		return nil, &ConfigurationError{Err: errors.New("configuration is required")}
	}
	if cnf.MaxPostsPerCycle < 1 {
		return nil, &ConfigurationError{Field: "max_posts_per_cycle", Err: fmt.Errorf("must be at least 1, got %d", cnf.MaxPostsPerCycle)}
	}
	if a.ledger == nil || a.source == nil {
		return nil, &ConfigurationError{Err: errors.New("ledger and asset source are required")}
	}

	cycleID := model.GenerateUUIDWithSuffix("cyc")
	ctx, span := tracer.Start(ctx, "RunCycle", trace.WithAttributes(
		attribute.String("cycle.id", cycleID),
		attribute.Bool("cycle.dry_run", cnf.DryRun),
		attribute.Int("cycle.quota", cnf.MaxPostsPerCycle),
	))
	defer span.End()

	logger := a.logger.WithField("cycle_id", cycleID)
	logger.WithFields(logrus.Fields{
		"dry_run": cnf.DryRun,
		"quota":   cnf.MaxPostsPerCycle,
	}).Info("cycle started")
	started := time.Now()

	captions := NewCaptionProvider(a.captionBackend, cnf, a.ledger, logger)
	captions.cycleID = cycleID
	captions.metrics = a.metrics
	captions.now = a.now
	publisher := NewPublisher(a.publishBackend, a.source, cnf, logger)
	publisher.now = a.now

	outcomes := make([]model.PublishOutcome, 0, cnf.MaxPostsPerCycle)
	attempted := make(map[string]struct{})

	finish := func(result string, err error) ([]model.PublishOutcome, error) {
		if a.metrics != nil {
			a.metrics.cycleDuration.WithLabelValues(result).Observe(time.Since(started).Seconds())
		}
		span.SetAttributes(attribute.Int("cycle.outcomes", len(outcomes)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		logger.WithFields(logrus.Fields{
			"result":   result,
			"outcomes": len(outcomes),
			"duration": time.Since(started).String(),
		}).Info("cycle finished")
		return outcomes, err
	}

	for len(outcomes) < cnf.MaxPostsPerCycle {
		if err := ctx.Err(); err != nil {
			logger.WithError(err).Warn("cycle cancelled")
			return finish("cancelled", err)
		}

		asset, err := a.selectNext(ctx, attempted)
		if err != nil {
			logger.WithError(err).Error("cycle aborted")
			a.recordError(context.WithoutCancel(ctx), cycleID, "cycle", err)
			a.notify(err)
			return finish("aborted", err)
		}
		if asset == nil {
			break
		}
		attempted[asset.ID] = struct{}{}

		outcome, err := a.attempt(context.WithoutCancel(ctx), cycleID, *asset, captions, publisher, cnf.DryRun, logger)
		if err != nil {
			logger.WithError(err).Error("cycle aborted")
			return finish("aborted", err)
		}
		outcomes = append(outcomes, outcome)
	}

	return finish("completed", nil)
}

func (a *Autopost) selectNext(ctx context.Context, attempted map[string]struct{}) (*model.Asset, error) {
	candidates, err := a.source.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	consumed, err := a.ledger.ConsumedAssetIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("read consumed assets: %w", err)
	}
	return pickUnconsumed(candidates, consumed, attempted), nil
}

// attempt drives one asset from selected to recorded. Only a ledger write failure is returned.
func (a *Autopost) attempt(ctx context.Context, cycleID string, asset model.Asset, captions *CaptionProvider, publisher *Publisher, dryRun bool, logger logrus.FieldLogger) (model.PublishOutcome, error) {
	ctx, span := tracer.Start(ctx, "PublishAsset", trace.WithAttributes(attribute.String("asset.id", asset.ID)))
	defer span.End()

	logger = logger.WithField("asset_id", asset.ID)
	caption, outcome := a.captionAndPublish(ctx, cycleID, asset, captions, publisher, dryRun, logger)

	record := &model.PostRecord{
		CycleID:       cycleID,
		AssetID:       asset.ID,
		Caption:       caption.Text,
		CaptionSource: caption.Source,
		Status:        outcome.Status,
		ExternalID:    outcome.ExternalID,
		ErrorDetail:   outcome.Error,
		Platform:      PlatformX,
		DryRun:        dryRun,
		CreatedAt:     outcome.Timestamp,
	}
	if err := a.ledger.RecordPost(ctx, record); err != nil {
		werr := &LedgerWriteError{AssetID: asset.ID, Err: err}
		if a.metrics != nil {
			a.metrics.ledgerFailures.Inc()
		}
		span.RecordError(werr)
		span.SetStatus(codes.Error, werr.Error())
		a.recordError(ctx, cycleID, "ledger", werr)
		a.notify(werr)
		return outcome, werr
	}

	span.SetAttributes(attribute.String("publish.status", string(outcome.Status)))
	if a.metrics != nil {
		a.metrics.outcomes.WithLabelValues(string(outcome.Status)).Inc()
	}

	entry := logger.WithFields(logrus.Fields{
		"status":         outcome.Status,
		"caption_source": caption.Source,
		"external_id":    outcome.ExternalID,
		"post_id":        record.PostID,
	})
	if outcome.Status == model.StatusFailed {
		entry.WithField("error", outcome.Error).Warn("asset outcome")
	} else {
		entry.Info("asset outcome")
	}

	if a.events != nil {
		if err := a.events.PostRecorded(ctx, *record); err != nil {
			logger.WithError(err).Warn("failed to emit post event")
		}
	}
	return outcome, nil
}

// captionAndPublish never panics: a panic in either stage becomes a failed outcome
// and an ErrorRecord.
func (a *Autopost) captionAndPublish(ctx context.Context, cycleID string, asset model.Asset, captions *CaptionProvider, publisher *Publisher, dryRun bool, logger logrus.FieldLogger) (caption model.CaptionResult, outcome model.PublishOutcome) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := fmt.Errorf("panic while publishing %s: %v", asset.ID, r)
		logger.WithError(err).Error("asset attempt panicked")
		a.recordError(ctx, cycleID, "attempt", err)
		if caption.Source == "" {
			caption.Source = model.CaptionTemplate
		}
		outcome = model.PublishOutcome{
			AssetID:   asset.ID,
			Status:    model.StatusFailed,
			Error:     err.Error(),
			Caption:   caption.Text,
			Timestamp: a.clock(),
		}
	}()

	caption = captions.Generate(ctx, asset)
	outcome = publisher.Publish(ctx, asset, caption, dryRun)
	return caption, outcome
}

func (a *Autopost) notify(err error) {
	if a.notifier != nil {
		a.notifier(err)
	}
}
