package autopost

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/model"
)

// CaptionBackend generates caption text from a prompt.
type CaptionBackend interface {
	Complete(ctx context.Context, prompt, model string) (string, error)
}

// RemoteResult is the outcome of one remote caption attempt: either Text or Err is set.
type RemoteResult struct {
	Text string
	Err  *RemoteCaptionError
}

func remoteOK(text string) RemoteResult {
	return RemoteResult{Text: text}
}

func remoteFailed(model string, err error) RemoteResult {
	var rce *RemoteCaptionError
	if errors.As(err, &rce) {
		return RemoteResult{Err: rce}
	}
	return RemoteResult{Err: &RemoteCaptionError{Model: model, Err: err}}
}

// CaptionProvider produces caption text for an asset. Generate always returns a caption.
type CaptionProvider struct {
	backend CaptionBackend
	caption config.CaptionConfig
	tweet   config.TweetConfig
	remote  bool
	ledger  Ledger
	logger  logrus.FieldLogger
	metrics *Metrics
	cycleID string
	now     func() time.Time
}

// NewCaptionProvider builds a provider from the caption and tweet sections of cnf.
// The remote generator is only attempted when backend is set and an OpenAI key is present.
// ledger may be nil, in which case fallbacks are only logged.
func NewCaptionProvider(backend CaptionBackend, cnf *config.Configuration, ledger Ledger, logger logrus.FieldLogger) *CaptionProvider {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CaptionProvider{
		backend: backend,
		caption: cnf.Caption,
		tweet:   cnf.Tweet,
		remote:  backend != nil && strings.TrimSpace(cnf.OpenAI.APIKey) != "",
		ledger:  ledger,
		logger:  logger,
		now:     time.Now,
	}
}

// Generate returns the caption for asset, falling back to a template when the remote
// generator fails. The result is prefixed, suffixed and truncated to the tweet length.
func (p *CaptionProvider) Generate(ctx context.Context, asset model.Asset) model.CaptionResult {
	result := model.CaptionResult{GeneratedAt: p.now().UTC()}

	var body string
	if p.remote {
		switch r := p.complete(ctx, asset); {
		case r.Err != nil:
			p.fallback(ctx, asset, r.Err)
		default:
			body = r.Text
			result.Source = model.CaptionRemote
			result.Model = p.caption.Model
		}
	}
	if result.Source == "" {
		result.Template = p.TemplateFor(asset)
		body = fillTemplate(result.Template, asset.Filename(), asset.Stem(), asset.ID)
		result.Source = model.CaptionTemplate
	}

	body = TruncateAtWord(strings.TrimSpace(body), p.caption.MaxLength)
	result.Text = TruncateAtWord(Compose(p.tweet.Prefix, body, p.tweet.Suffix), p.tweet.MaxLength)

	if p.metrics != nil {
		p.metrics.captions.WithLabelValues(string(result.Source)).Inc()
	}
	return result
}

// TemplateFor picks the template for asset: fnv-32a of the identifier modulo the template count.
func (p *CaptionProvider) TemplateFor(asset model.Asset) string {
	templates := p.caption.Templates
	if len(templates) == 0 {
		templates = config.DefaultTemplates
	}
	return templates[hashAssetID(asset.ID)%uint32(len(templates))]
}

func (p *CaptionProvider) complete(ctx context.Context, asset model.Asset) RemoteResult {
	timeout := time.Duration(p.caption.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := p.backend.Complete(ctx, p.prompt(asset), p.caption.Model)
	if err != nil {
		return remoteFailed(p.caption.Model, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return remoteFailed(p.caption.Model, errors.New("empty completion"))
	}
	return remoteOK(text)
}

func (p *CaptionProvider) prompt(asset model.Asset) string {
	prompt := fillTemplate(p.caption.Prompt, asset.Filename(), asset.Stem(), asset.ID)
	if strings.Contains(p.caption.Prompt, "{filename}") {
		return prompt
	}
	return prompt + "\n文件名：" + asset.Filename()
}

func (p *CaptionProvider) fallback(ctx context.Context, asset model.Asset, cause *RemoteCaptionError) {
	p.logger.WithFields(logrus.Fields{
		"cycle_id": p.cycleID,
		"asset_id": asset.ID,
		"model":    cause.Model,
	}).WithError(cause).Warn("caption fallback")

	if p.ledger == nil {
		return
	}
	record := &model.ErrorRecord{
		CycleID:   p.cycleID,
		Context:   "caption",
		Message:   cause.Error(),
		Details:   errorDetails(cause),
		CreatedAt: p.now().UTC(),
	}
	if err := p.ledger.RecordError(context.WithoutCancel(ctx), record); err != nil {
		p.logger.WithError(err).WithField("asset_id", asset.ID).Error("failed to record caption fallback")
	}
}

func hashAssetID(id string) uint32 {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(id))
	return hasher.Sum32()
}
