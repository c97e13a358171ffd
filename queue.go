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
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/autopost/autopost/config"
	redis_db "github.com/autopost/autopost/internal/redis-db"
	"github.com/autopost/autopost/model"
)

const (
	CYCLE_QUEUE   = "autopost_cycles"
	WEBHOOK_QUEUE = "autopost_webhooks"
)

// Queue enqueues cycle and webhook tasks on Redis.
type Queue struct {
	Client     *asynq.Client
	Inspector  *asynq.Inspector
	webhookURL string
}

// CyclePayload is the body of a cycle task. It is also the uniqueness key, so it
// carries nothing that changes between two requests for the same reason.
type CyclePayload struct {
	Reason string `json:"reason"`
}

// RedisClientOpt converts the configured Redis DSN into asynq connection options.
func RedisClientOpt(conf *config.Configuration) (asynq.RedisClientOpt, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:      redisOption.Addr,
		Username:  redisOption.Username,
		Password:  redisOption.Password,
		DB:        redisOption.DB,
		TLSConfig: redisOption.TLSConfig,
	}, nil
}

// NewQueue connects the task client and inspector to the configured Redis.
func NewQueue(conf *config.Configuration) (*Queue, error) {
	if conf.Redis.Dns == "" {
		return nil, &ConfigurationError{Field: "redis.dns", Err: fmt.Errorf("redis is required for the task queue")}
	}
	queueOptions, err := RedisClientOpt(conf)
	if err != nil {
		return nil, &ConfigurationError{Field: "redis.dns", Err: err}
	}
	return &Queue{
		Client:     asynq.NewClient(queueOptions),
		Inspector:  asynq.NewInspector(queueOptions),
		webhookURL: conf.Notification.Webhook.Url,
	}, nil
}

// EnqueueCycle asks the worker to run one cycle. While an earlier request is still
// pending, duplicates are rejected with asynq.ErrDuplicateTask.
func (q *Queue) EnqueueCycle(ctx context.Context, reason string) (*asynq.TaskInfo, error) {
	payload, err := json.Marshal(CyclePayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	task := asynq.NewTask(CYCLE_QUEUE, payload,
		asynq.Queue(CYCLE_QUEUE),
		asynq.MaxRetry(0),
		asynq.Unique(10*time.Minute),
	)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"task_id": info.ID, "reason": reason}).Info("cycle enqueued")
	return info, nil
}

// EnqueueWebhook schedules delivery of an event to the configured webhook URL.
func (q *Queue) EnqueueWebhook(ctx context.Context, hook NewWebhook) error {
	payload, err := json.Marshal(hook)
	if err != nil {
		return err
	}
	task := asynq.NewTask(WEBHOOK_QUEUE, payload, asynq.Queue(WEBHOOK_QUEUE), asynq.MaxRetry(5))
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"task_id": info.ID, "event": hook.Event}).Debug("webhook enqueued")
	return nil
}

// PostRecorded forwards a recorded post as a webhook when a webhook URL is configured.
func (q *Queue) PostRecorded(ctx context.Context, record model.PostRecord) error {
	if q.webhookURL == "" {
		return nil
	}
	return q.EnqueueWebhook(ctx, NewWebhook{Event: getEventFromStatus(record.Status), Payload: record})
}

// PendingCycles reports how many cycle tasks are waiting or running.
func (q *Queue) PendingCycles() (int, error) {
	info, err := q.Inspector.GetQueueInfo(CYCLE_QUEUE)
	if err != nil {
		return 0, err
	}
	return info.Pending + info.Active + info.Scheduled, nil
}

func (q *Queue) Close() error {
	if err := q.Inspector.Close(); err != nil {
		return err
	}
	return q.Client.Close()
}
