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

package database

import (
	"context"

	"github.com/autopost/autopost/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	post
	errorLog
	Close() error
}

// post defines the append-only operations on publish attempts.
type post interface {
	// RecordPost appends one attempt. The row is durable when it returns.
	RecordPost(ctx context.Context, record *model.PostRecord) error
	// IsConsumed reports whether the asset has a published or simulated row.
	IsConsumed(ctx context.Context, assetID string) (bool, error)
	ConsumedAssetIDs(ctx context.Context) (map[string]struct{}, error)
	ListPosts(ctx context.Context, limit int) ([]model.PostRecord, error)
	ListPostsByAsset(ctx context.Context, assetID string) ([]model.PostRecord, error)
	PostStats(ctx context.Context) (model.PostStats, error)
}

// errorLog defines methods for error records.
type errorLog interface {
	RecordError(ctx context.Context, record *model.ErrorRecord) error
	ListErrors(ctx context.Context, limit int) ([]model.ErrorRecord, error)
}

func (d Datasource) Close() error {
	if d.Conn == nil {
		return nil
	}
	return d.Conn.Close()
}
