package autopost

import (
	"context"
	"fmt"

	"github.com/autopost/autopost/model"
)

// Ledger is the durable append-only record of publish attempts.
// database.Datasource satisfies it.
type Ledger interface {
	RecordPost(ctx context.Context, record *model.PostRecord) error
	RecordError(ctx context.Context, record *model.ErrorRecord) error
	IsConsumed(ctx context.Context, assetID string) (bool, error)
	ConsumedAssetIDs(ctx context.Context) (map[string]struct{}, error)
	ListPosts(ctx context.Context, limit int) ([]model.PostRecord, error)
	ListPostsByAsset(ctx context.Context, assetID string) ([]model.PostRecord, error)
	ListErrors(ctx context.Context, limit int) ([]model.ErrorRecord, error)
	PostStats(ctx context.Context) (model.PostStats, error)
}

// EventSink receives every post once it is durably recorded.
type EventSink interface {
	PostRecorded(ctx context.Context, record model.PostRecord) error
}

// recordError appends an ErrorRecord. Failures are logged and otherwise ignored.
func (a *Autopost) recordError(ctx context.Context, cycleID, errContext string, cause error) {
	record := &model.ErrorRecord{
		CycleID:   cycleID,
		Context:   errContext,
		Message:   cause.Error(),
		Details:   errorDetails(cause),
		CreatedAt: a.clock(),
	}
	if err := a.ledger.RecordError(ctx, record); err != nil {
		a.logger.WithError(err).WithField("context", errContext).Error("failed to record error")
	}
}

// errorDetails flattens the wrap chain of err, outermost first.
func errorDetails(err error) string {
	details := ""
	for e := err; e != nil; {
		if details != "" {
			details += "\n"
		}
		details += fmt.Sprintf("%T: %v", e, e)
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return details
}
