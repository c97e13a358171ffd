package autopost

import (
	"context"
	"errors"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/sirupsen/logrus"
)

// ErrCaptionCircuitOpen is returned while the caption breaker is open.
var ErrCaptionCircuitOpen = errors.New("caption backend circuit open")

// BreakerBackend stops calling a failing caption backend for a cooldown period.
// While open, every call fails immediately and captions come from templates.
type BreakerBackend struct {
	next CaptionBackend
	cb   circuitbreaker.CircuitBreaker[string]
}

// NewBreakerBackend opens after threshold consecutive failures and half-opens after cooldown.
func NewBreakerBackend(next CaptionBackend, threshold uint, cooldown time.Duration, logger logrus.FieldLogger, metrics *Metrics) *BreakerBackend {
	if threshold == 0 {
		threshold = 1
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	cb := circuitbreaker.NewBuilder[string]().
		WithFailureThreshold(threshold).
		WithDelay(cooldown).
		OnStateChanged(func(event circuitbreaker.StateChangedEvent) {
			logger.WithFields(logrus.Fields{
				"from_state": stateName(event.OldState),
				"to_state":   stateName(event.NewState),
			}).Warn("caption circuit breaker state change")
			if metrics != nil {
				metrics.setBreakerState(event.NewState)
			}
		}).
		Build()
	return &BreakerBackend{next: next, cb: cb}
}

func (b *BreakerBackend) Complete(ctx context.Context, prompt, model string) (string, error) {
	text, err := failsafe.With(b.cb).WithContext(ctx).Get(func() (string, error) {
		return b.next.Complete(ctx, prompt, model)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return "", &RemoteCaptionError{Model: model, Err: ErrCaptionCircuitOpen}
	}
	return text, err
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerBackend) State() string {
	return stateName(b.cb.State())
}

func stateName(state circuitbreaker.State) string {
	switch state {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}
