package autopost

import (
	"fmt"

	"github.com/autopost/autopost/config"
)

// RemoteCaptionError reports a failed call to the caption generator. It is always
// recovered by falling back to a template.
type RemoteCaptionError struct {
	Model string
	Err   error
}

func (e *RemoteCaptionError) Error() string {
	return fmt.Sprintf("remote caption (%s): %v", e.Model, e.Err)
}

func (e *RemoteCaptionError) Unwrap() error {
	return e.Err
}

// RemotePublishError reports a failed call to the publishing platform. It becomes a
// failed outcome and the asset stays eligible.
type RemotePublishError struct {
	Stage      string
	StatusCode int
	Err        error
}

func (e *RemotePublishError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote publish %s: status %d: %v", e.Stage, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote publish %s: %v", e.Stage, e.Err)
}

func (e *RemotePublishError) Unwrap() error {
	return e.Err
}

// LedgerWriteError aborts the running cycle.
type LedgerWriteError struct {
	AssetID string
	Err     error
}

func (e *LedgerWriteError) Error() string {
	return fmt.Sprintf("ledger write failed for asset %s: %v", e.AssetID, e.Err)
}

func (e *LedgerWriteError) Unwrap() error {
	return e.Err
}

// ConfigurationError is fatal at cycle start.
type ConfigurationError = config.ConfigurationError
