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
package model

import (
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/autopost/autopost/model"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 500
	MaxPostsPerRun   = 50
)

// RunCycle is the body of POST /cycles. Unset fields keep the configured values.
type RunCycle struct {
	MaxPosts *int  `json:"max_posts"`
	DryRun   *bool `json:"dry_run"`
	Async    bool  `json:"async"`
}

func (r *RunCycle) ValidateRunCycle() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.MaxPosts, validation.NilOrNotEmpty, validation.Min(1), validation.Max(MaxPostsPerRun)),
	)
}

// PreviewCaption is the body of POST /captions/preview. An empty asset id previews the
// asset the next cycle would pick.
type PreviewCaption struct {
	AssetID string `json:"asset_id"`
}

func (p *PreviewCaption) ValidatePreviewCaption() error {
	return validation.ValidateStruct(p,
		validation.Field(&p.AssetID, validation.Length(0, 1024)),
	)
}

// Limit reads the optional limit query parameter.
type Limit struct {
	Raw   string
	Value int
}

func ParseLimit(raw string) (int, error) {
	l := Limit{Raw: raw, Value: DefaultListLimit}
	if err := l.Validate(); err != nil {
		return 0, err
	}
	return l.Value, nil
}

func (l *Limit) Validate() error {
	if l.Raw == "" {
		return nil
	}
	return validation.ValidateStruct(l,
		validation.Field(&l.Raw, validation.By(func(interface{}) error {
			n, err := strconv.Atoi(l.Raw)
			if err != nil {
				return validation.NewError("validation_is_int", "must be an integer")
			}
			l.Value = n
			return nil
		})),
		validation.Field(&l.Value, validation.Required, validation.Min(1), validation.Max(MaxListLimit)),
	)
}

type Credentials struct {
	OpenAIKey     string `json:"openai_api_key"`
	RemoteCaption bool   `json:"remote_caption"`
	TwitterKey    string `json:"twitter_api_key"`
	TwitterReady  bool   `json:"twitter_ready"`
}

type Overview struct {
	ProjectName string          `json:"project_name"`
	DryRun      bool            `json:"dry_run"`
	Stats       model.PostStats `json:"stats"`
	NextRun     *time.Time      `json:"next_run,omitempty"`
	Credentials Credentials     `json:"credentials"`
	Breaker     string          `json:"caption_breaker,omitempty"`
}

type Schedule struct {
	Spec       string    `json:"spec"`
	Timezone   string    `json:"timezone"`
	InitialRun bool      `json:"initial_run"`
	NextRun    time.Time `json:"next_run"`
}

type Enqueued struct {
	TaskID string `json:"task_id"`
	Queue  string `json:"queue"`
}
