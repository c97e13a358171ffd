package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/autopost/autopost/internal/apierror"
	"github.com/autopost/autopost/model"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
)

const postColumns = `post_id, cycle_id, asset_id, caption, caption_source, status, external_id, error_detail, platform, dry_run, created_at`

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// RecordPost appends a publish attempt inside its own short transaction.
// A second consuming row for the same asset is rejected with ErrConflict.
func (d Datasource) RecordPost(ctx context.Context, record *model.PostRecord) error {
	if record.PostID == "" {
		record.PostID = model.GenerateUUIDWithSuffix("pst")
	}
	if record.CreatedAt.IsZero() {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "post record has no timestamp", nil)
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, d.rebind(`
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`),
		record.PostID,
		record.CycleID,
		record.AssetID,
		record.Caption,
		string(record.CaptionSource),
		string(record.Status),
		nullString(record.ExternalID),
		nullString(record.ErrorDetail),
		record.Platform,
		record.DryRun,
		record.CreatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apierror.NewAPIError(apierror.ErrConflict, "Asset already has a consuming post", err)
		}
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record post", err)
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit post", err)
	}
	return nil
}

func (d Datasource) IsConsumed(ctx context.Context, assetID string) (bool, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, d.rebind(`
		SELECT COUNT(*) FROM posts
		WHERE asset_id = $1 AND status IN ('published', 'simulated')
	`), assetID).Scan(&count)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check asset", err)
	}
	return count > 0, nil
}

func (d Datasource) ConsumedAssetIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT DISTINCT asset_id FROM posts
		WHERE status IN ('published', 'simulated')
	`)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read consumed assets", err)
	}
	defer rows.Close()

	consumed := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan consumed asset", err)
		}
		consumed[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over consumed assets", err)
	}
	return consumed, nil
}

func (d Datasource) ListPosts(ctx context.Context, limit int) ([]model.PostRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, d.rebind(`
		SELECT `+postColumns+`
		FROM posts
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`), normalizeLimit(limit))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve posts", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (d Datasource) ListPostsByAsset(ctx context.Context, assetID string) ([]model.PostRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, d.rebind(`
		SELECT `+postColumns+`
		FROM posts
		WHERE asset_id = $1
		ORDER BY created_at DESC, id DESC
	`), assetID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve posts for asset", err)
	}
	defer rows.Close()
	return scanPosts(rows)
}

func (d Datasource) PostStats(ctx context.Context) (model.PostStats, error) {
	stats := model.PostStats{}
	rows, err := d.Conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM posts GROUP BY status`)
	if err != nil {
		return stats, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count posts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return stats, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan post counts", err)
		}
		switch model.PublishStatus(status) {
		case model.StatusPublished:
			stats.Published = count
		case model.StatusSimulated:
			stats.Simulated = count
		case model.StatusFailed:
			stats.Failed = count
		}
	}
	if err := rows.Err(); err != nil {
		return stats, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while counting posts", err)
	}

	latest, err := d.ListPosts(ctx, 1)
	if err != nil {
		return stats, err
	}
	if len(latest) > 0 {
		stats.LastPost = &latest[0]
	}
	return stats, nil
}

func scanPosts(rows *sql.Rows) ([]model.PostRecord, error) {
	posts := []model.PostRecord{}
	for rows.Next() {
		var p model.PostRecord
		var source, status string
		var externalID, errorDetail sql.NullString
		err := rows.Scan(
			&p.PostID,
			&p.CycleID,
			&p.AssetID,
			&p.Caption,
			&source,
			&status,
			&externalID,
			&errorDetail,
			&p.Platform,
			&p.DryRun,
			&p.CreatedAt,
		)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan post data", err)
		}
		p.CaptionSource = model.CaptionSource(source)
		p.Status = model.PublishStatus(status)
		p.ExternalID = externalID.String
		p.ErrorDetail = errorDetail.String
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over posts", err)
	}
	return posts, nil
}
