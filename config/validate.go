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

package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ConfigurationError is returned when the configuration cannot be loaded or is invalid.
// A cycle started with such a configuration processes no assets.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error (%s): %v", e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

var placeholderSecrets = map[string]struct{}{
	"xxx":             {},
	"your_openai_key": {},
	"your-openai-key": {},
	"please_replace":  {},
	"your_api_key":    {},
}

// IsPlaceholder reports whether a secret is one of the sample values shipped in example configs.
func IsPlaceholder(value string) bool {
	_, ok := placeholderSecrets[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// MaskSecret hides most of a secret so it can be logged or displayed.
func MaskSecret(value string) string {
	runes := []rune(value)
	switch {
	case len(runes) == 0:
		return "<unset>"
	case len(runes) <= 4:
		return string(runes[:1]) + "***"
	case len(runes) <= 8:
		return string(runes[:2]) + "***" + string(runes[len(runes)-2:])
	default:
		return string(runes[:4]) + "***" + string(runes[len(runes)-4:])
	}
}

func (cnf *Configuration) scrubSecrets() {
	secrets := map[string]*string{
		"OPENAI_API_KEY":              &cnf.OpenAI.APIKey,
		"TWITTER_API_KEY":             &cnf.Twitter.APIKey,
		"TWITTER_API_SECRET":          &cnf.Twitter.APISecret,
		"TWITTER_ACCESS_TOKEN":        &cnf.Twitter.AccessToken,
		"TWITTER_ACCESS_TOKEN_SECRET": &cnf.Twitter.AccessTokenSecret,
		"TWITTER_BEARER_TOKEN":        &cnf.Twitter.BearerToken,
	}
	for name, value := range secrets {
		*value = strings.TrimSpace(*value)
		if IsPlaceholder(*value) {
			logrus.WithField("secret", name).Warn("placeholder value detected, treating secret as unset")
			*value = ""
		}
	}
}

// Validate checks the loaded configuration. Every failure is a *ConfigurationError.
func (cnf *Configuration) Validate() error {
	err := validation.ValidateStruct(cnf,
		validation.Field(&cnf.MaxPostsPerCycle, validation.Required, validation.Min(1)),
		validation.Field(&cnf.DataSource, validation.By(func(interface{}) error {
			return validateDSN(cnf.DataSource.Dns)
		})),
		validation.Field(&cnf.Caption),
		validation.Field(&cnf.Tweet),
		validation.Field(&cnf.Scheduler),
		validation.Field(&cnf.LogLevel, validation.By(func(interface{}) error {
			_, err := logrus.ParseLevel(cnf.LogLevel)
			return err
		})),
	)
	if err != nil {
		return &ConfigurationError{Err: err}
	}
	return nil
}

func (c CaptionConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Templates, validation.Required),
		validation.Field(&c.MaxLength, validation.Min(0)),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.TimeoutSeconds, validation.Min(1)),
	)
}

func (t TweetConfig) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.MaxLength, validation.Min(1)),
		validation.Field(&t.TimeoutSeconds, validation.Min(1)),
	)
}

func (s SchedulerConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.IntervalMinutes, validation.Min(0)),
		validation.Field(&s.Timezone, validation.By(func(interface{}) error {
			_, err := time.LoadLocation(s.Timezone)
			return err
		})),
		validation.Field(&s.Cron, validation.By(func(interface{}) error {
			_, err := s.Schedule()
			return err
		})),
	)
}

// CronSpec returns the schedule as a cron expression understood by the scheduler.
func (s SchedulerConfig) CronSpec() string {
	if strings.TrimSpace(s.Cron) != "" {
		return strings.TrimSpace(s.Cron)
	}
	return fmt.Sprintf("@every %dm", s.IntervalMinutes)
}

// Schedule parses CronSpec.
func (s SchedulerConfig) Schedule() (cron.Schedule, error) {
	if s.Cron == "" && s.IntervalMinutes <= 0 {
		return nil, errors.New("either interval_minutes or cron must be set")
	}
	return cron.ParseStandard(s.CronSpec())
}

// Location returns the scheduler time zone, falling back to UTC.
func (s SchedulerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// NextRun returns the next firing time after from.
func (s SchedulerConfig) NextRun(from time.Time) (time.Time, error) {
	schedule, err := s.Schedule()
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(from.In(s.Location())), nil
}

func validateDSN(dsn string) error {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return nil
	case strings.HasPrefix(dsn, "sqlite://"), strings.HasPrefix(dsn, "file:"):
		return nil
	default:
		return fmt.Errorf("unsupported data source %q: use sqlite://, file: or postgres://", dsn)
	}
}

// Masked returns a copy safe to print: every credential is passed through MaskSecret.
func (cnf Configuration) Masked() Configuration {
	out := cnf
	out.OpenAI.APIKey = MaskSecret(cnf.OpenAI.APIKey)
	out.Twitter.APIKey = MaskSecret(cnf.Twitter.APIKey)
	out.Twitter.APISecret = MaskSecret(cnf.Twitter.APISecret)
	out.Twitter.AccessToken = MaskSecret(cnf.Twitter.AccessToken)
	out.Twitter.AccessTokenSecret = MaskSecret(cnf.Twitter.AccessTokenSecret)
	out.Twitter.BearerToken = MaskSecret(cnf.Twitter.BearerToken)
	out.S3.AccessKeyID = MaskSecret(cnf.S3.AccessKeyID)
	out.S3.SecretAccessKey = MaskSecret(cnf.S3.SecretAccessKey)
	out.Server.SecretKey = MaskSecret(cnf.Server.SecretKey)
	out.Notification.Slack.WebhookUrl = MaskSecret(cnf.Notification.Slack.WebhookUrl)
	return out
}
