/*
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
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/internal/request"
	"github.com/autopost/autopost/model"
)

// NewWebhook is the body delivered to the configured webhook URL.
type NewWebhook struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"data"`
}

// getEventFromStatus maps a publish status to its webhook event name.
func getEventFromStatus(status model.PublishStatus) string {
	switch status {
	case model.StatusPublished:
		return "post.published"
	case model.StatusSimulated:
		return "post.simulated"
	case model.StatusFailed:
		return "post.failed"
	default:
		return "post.unknown"
	}
}

// processHTTP posts data to url with the configured extra headers.
func processHTTP(ctx context.Context, client *http.Client, url string, headers map[string]string, data NewWebhook) error {
	payload, err := request.ToJsonReq(data)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, payload)
	if err != nil {
		return err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	_, err = request.Call(client, req, nil)
	if err != nil {
		return fmt.Errorf("deliver webhook %s: %w", data.Event, err)
	}
	logrus.WithField("event", data.Event).Info("webhook notification sent")
	return nil
}

// ProcessWebhook is the asynq handler for WEBHOOK_QUEUE tasks.
func ProcessWebhook(ctx context.Context, task *asynq.Task) error {
	conf, err := config.Fetch()
	if err != nil {
		return err
	}
	if conf.Notification.Webhook.Url == "" {
		return nil
	}

	var payload NewWebhook
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logrus.WithError(err).Error("error unmarshaling webhook payload")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	logrus.WithField("event", payload.Event).Debug("processing webhook")
	return processHTTP(ctx, nil, conf.Notification.Webhook.Url, conf.Notification.Webhook.Headers, payload)
}
