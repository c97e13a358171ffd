package model

import "time"

type CaptionSource string

const (
	CaptionRemote   CaptionSource = "remote"
	CaptionTemplate CaptionSource = "template"
)

type PublishStatus string

const (
	StatusPublished PublishStatus = "published"
	StatusSimulated PublishStatus = "simulated"
	StatusFailed    PublishStatus = "failed"
)

// Consumes reports whether a record with this status marks its asset as used.
func (s PublishStatus) Consumes() bool {
	return s == StatusPublished || s == StatusSimulated
}

type CaptionResult struct {
	Text        string        `json:"text"`
	Source      CaptionSource `json:"source"`
	Model       string        `json:"model,omitempty"`
	Template    string        `json:"template,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

type PublishOutcome struct {
	AssetID    string        `json:"asset_id"`
	Status     PublishStatus `json:"status"`
	ExternalID string        `json:"external_id,omitempty"`
	Error      string        `json:"error,omitempty"`
	Caption    string        `json:"caption,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// PostRecord is one append-only ledger row describing a publish attempt.
type PostRecord struct {
	PostID        string        `json:"post_id"`
	CycleID       string        `json:"cycle_id"`
	AssetID       string        `json:"asset_id"`
	Caption       string        `json:"caption"`
	CaptionSource CaptionSource `json:"caption_source"`
	Status        PublishStatus `json:"status"`
	ExternalID    string        `json:"external_id,omitempty"`
	ErrorDetail   string        `json:"error_detail,omitempty"`
	Platform      string        `json:"platform"`
	DryRun        bool          `json:"dry_run"`
	CreatedAt     time.Time     `json:"created_at"`
}

// ErrorRecord captures a swallowed or fatal error for later inspection.
type ErrorRecord struct {
	ErrorID   string    `json:"error_id"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Context   string    `json:"context"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PostStats summarises the ledger for the overview endpoint.
type PostStats struct {
	Published int64       `json:"published"`
	Simulated int64       `json:"simulated"`
	Failed    int64       `json:"failed"`
	LastPost  *PostRecord `json:"last_post,omitempty"`
}
