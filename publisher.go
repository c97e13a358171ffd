package autopost

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autopost/autopost/assets"
	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/model"
)

// Media is the uploaded binary content of an asset.
type Media struct {
	Name        string
	ContentType string
	Data        []byte
}

// PublishBackend creates a post on the remote platform and returns its identifier.
type PublishBackend interface {
	CreatePost(ctx context.Context, media Media, text string, creds config.TwitterConfig) (string, error)
}

// Publisher turns an asset and caption into a PublishOutcome. It never retries.
type Publisher struct {
	backend PublishBackend
	source  assets.Source
	creds   config.TwitterConfig
	timeout time.Duration
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewPublisher(backend PublishBackend, source assets.Source, cnf *config.Configuration, logger logrus.FieldLogger) *Publisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	timeout := time.Duration(cnf.Tweet.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Publisher{
		backend: backend,
		source:  source,
		creds:   cnf.Twitter,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Publish simulates when dryRun is set or credentials are missing, without touching the
// network or the asset content. Otherwise it uploads the media and creates the post.
func (p *Publisher) Publish(ctx context.Context, asset model.Asset, caption model.CaptionResult, dryRun bool) model.PublishOutcome {
	outcome := model.PublishOutcome{AssetID: asset.ID, Caption: caption.Text}

	if dryRun || p.backend == nil || !p.creds.Configured() {
		if !dryRun {
			p.logger.WithField("asset_id", asset.ID).Warn("publishing credentials missing, simulating post")
		}
		outcome.Status = model.StatusSimulated
		outcome.Timestamp = p.now().UTC()
		return outcome
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	externalID, err := p.publish(ctx, asset, caption.Text)
	outcome.Timestamp = p.now().UTC()
	if err != nil {
		outcome.Status = model.StatusFailed
		outcome.Error = err.Error()
		return outcome
	}
	outcome.Status = model.StatusPublished
	outcome.ExternalID = externalID
	return outcome
}

func (p *Publisher) publish(ctx context.Context, asset model.Asset, text string) (string, error) {
	media, err := p.readMedia(ctx, asset)
	if err != nil {
		return "", err
	}
	id, err := p.backend.CreatePost(ctx, media, text, p.creds)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", &RemotePublishError{Stage: "create", Err: fmt.Errorf("no post id returned")}
	}
	return id, nil
}

func (p *Publisher) readMedia(ctx context.Context, asset model.Asset) (Media, error) {
	if p.source == nil {
		return Media{}, fmt.Errorf("no asset source to read %s", asset.ID)
	}
	rc, err := p.source.Open(ctx, asset)
	if err != nil {
		return Media{}, fmt.Errorf("open asset %s: %w", asset.ID, err)
	}
	defer func() {
		_ = rc.Close()
	}()
	data, err := io.ReadAll(rc)
	if err != nil {
		return Media{}, fmt.Errorf("read asset %s: %w", asset.ID, err)
	}
	media, err := NormalizeMedia(Media{
		Name:        asset.Filename(),
		ContentType: assets.ContentType(asset.Filename()),
		Data:        data,
	})
	if err != nil {
		return Media{}, err
	}
	if media.Name != asset.Filename() {
		p.logger.WithFields(logrus.Fields{"asset_id": asset.ID, "upload_name": media.Name}).Info("converted asset to png for upload")
	}
	return media, nil
}
