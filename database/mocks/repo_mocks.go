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
package mocks

import (
	"context"

	"github.com/autopost/autopost/model"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Post methods

func (m *MockDataSource) RecordPost(ctx context.Context, record *model.PostRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) IsConsumed(ctx context.Context, assetID string) (bool, error) {
	args := m.Called(ctx, assetID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) ConsumedAssetIDs(ctx context.Context) (map[string]struct{}, error) {
	args := m.Called(ctx)
	consumed, _ := args.Get(0).(map[string]struct{})
	return consumed, args.Error(1)
}

func (m *MockDataSource) ListPosts(ctx context.Context, limit int) ([]model.PostRecord, error) {
	args := m.Called(ctx, limit)
	posts, _ := args.Get(0).([]model.PostRecord)
	return posts, args.Error(1)
}

func (m *MockDataSource) ListPostsByAsset(ctx context.Context, assetID string) ([]model.PostRecord, error) {
	args := m.Called(ctx, assetID)
	posts, _ := args.Get(0).([]model.PostRecord)
	return posts, args.Error(1)
}

func (m *MockDataSource) PostStats(ctx context.Context) (model.PostStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.PostStats), args.Error(1)
}

// Error methods

func (m *MockDataSource) RecordError(ctx context.Context, record *model.ErrorRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockDataSource) ListErrors(ctx context.Context, limit int) ([]model.ErrorRecord, error) {
	args := m.Called(ctx, limit)
	records, _ := args.Get(0).([]model.ErrorRecord)
	return records, args.Error(1)
}

func (m *MockDataSource) Close() error {
	args := m.Called()
	return args.Error(0)
}
