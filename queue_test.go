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
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/model"
)

func newTestQueue(t *testing.T, webhookURL string) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cnf := &config.Configuration{Redis: config.RedisConfig{Dns: mr.Addr()}}
	cnf.Notification.Webhook.Url = webhookURL
	q, err := NewQueue(cnf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, mr
}

func TestNewQueue_RequiresRedis(t *testing.T) {
	_, err := NewQueue(&config.Configuration{})
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "redis.dns", cfgErr.Field)
}

func TestEnqueueCycle(t *testing.T) {
	q, _ := newTestQueue(t, "")

	info, err := q.EnqueueCycle(context.Background(), "api")
	require.NoError(t, err)
	assert.Equal(t, CYCLE_QUEUE, info.Queue)

	var payload CyclePayload
	require.NoError(t, json.Unmarshal(info.Payload, &payload))
	assert.Equal(t, "api", payload.Reason)

	_, err = q.EnqueueCycle(context.Background(), "api")
	assert.ErrorIs(t, err, asynq.ErrDuplicateTask)

	pending, err := q.PendingCycles()
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
}

func TestPostRecorded_EnqueuesWebhook(t *testing.T) {
	q, mr := newTestQueue(t, "https://hooks.example.test/autopost")

	err := q.PostRecorded(context.Background(), model.PostRecord{PostID: "pst_1", AssetID: "a.jpg", Status: model.StatusSimulated})
	require.NoError(t, err)
	assert.NotEmpty(t, mr.Keys())

	tasks, err := q.Inspector.ListPendingTasks(WEBHOOK_QUEUE)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	var hook NewWebhook
	require.NoError(t, json.Unmarshal(tasks[0].Payload, &hook))
	assert.Equal(t, "post.simulated", hook.Event)
}

func TestPostRecorded_NoWebhookConfigured(t *testing.T) {
	q, mr := newTestQueue(t, "")

	err := q.PostRecorded(context.Background(), model.PostRecord{PostID: "pst_1", Status: model.StatusPublished})
	require.NoError(t, err)
	assert.Empty(t, mr.Keys())
}
