package database

import (
	"context"
	"database/sql"

	"github.com/autopost/autopost/internal/apierror"
	"github.com/autopost/autopost/model"
)

func (d Datasource) RecordError(ctx context.Context, record *model.ErrorRecord) error {
	if record.ErrorID == "" {
		record.ErrorID = model.GenerateUUIDWithSuffix("err")
	}
	_, err := d.Conn.ExecContext(ctx, d.rebind(`
		INSERT INTO errors (error_id, cycle_id, context, message, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`),
		record.ErrorID,
		nullString(record.CycleID),
		record.Context,
		record.Message,
		nullString(record.Details),
		record.CreatedAt.UTC(),
	)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record error", err)
	}
	return nil
}

func (d Datasource) ListErrors(ctx context.Context, limit int) ([]model.ErrorRecord, error) {
	rows, err := d.Conn.QueryContext(ctx, d.rebind(`
		SELECT error_id, cycle_id, context, message, details, created_at
		FROM errors
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`), normalizeLimit(limit))
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve errors", err)
	}
	defer rows.Close()

	records := []model.ErrorRecord{}
	for rows.Next() {
		var r model.ErrorRecord
		var cycleID, details sql.NullString
		if err := rows.Scan(&r.ErrorID, &cycleID, &r.Context, &r.Message, &details, &r.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan error data", err)
		}
		r.CycleID = cycleID.String
		r.Details = details.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over errors", err)
	}
	return records, nil
}
