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
	"embed"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/autopost/autopost/assets"
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var SQLFiles embed.FS

var tracer = otel.Tracer("autopost.cycle")

const PlatformX = "x"

// Autopost runs publish cycles. It holds no global state and performs no locking;
// callers serialize RunCycle invocations.
type Autopost struct {
	ledger         Ledger
	source         assets.Source
	captionBackend CaptionBackend
	publishBackend PublishBackend
	metrics        *Metrics
	logger         logrus.FieldLogger
	events         EventSink
	notifier       func(error)
	now            func() time.Time
}

// Option configures an Autopost instance.
type Option func(*Autopost)

// WithCaptionBackend sets the remote caption generator. Without one every caption comes from templates.
func WithCaptionBackend(backend CaptionBackend) Option {
	return func(a *Autopost) {
		a.captionBackend = backend
	}
}

// WithPublishBackend sets the remote platform client. Without one every publish is simulated.
func WithPublishBackend(backend PublishBackend) Option {
	return func(a *Autopost) {
		a.publishBackend = backend
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(a *Autopost) {
		a.metrics = metrics
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Autopost) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithEventSink registers a receiver for recorded posts, typically the webhook queue.
func WithEventSink(sink EventSink) Option {
	return func(a *Autopost) {
		a.events = sink
	}
}

// WithErrorNotifier sets a callback for errors that abort a cycle, e.g. notification.NotifyError.
func WithErrorNotifier(notify func(error)) Option {
	return func(a *Autopost) {
		a.notifier = notify
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(a *Autopost) {
		if now != nil {
			a.now = now
		}
	}
}

// NewAutopost wires a ledger and an asset source into a cycle runner.
func NewAutopost(ledger Ledger, source assets.Source, opts ...Option) *Autopost {
	a := &Autopost{
		ledger: ledger,
		source: source,
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Ledger exposes the underlying ledger for read-only history queries.
func (a *Autopost) Ledger() Ledger {
	return a.ledger
}

// Source exposes the asset source used by cycles.
func (a *Autopost) Source() assets.Source {
	return a.source
}

func (a *Autopost) clock() time.Time {
	return a.now().UTC()
}
