package autopost

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopost/autopost/model"
)

func TestPreviewCaption_NextAsset(t *testing.T) {
	ledger := &memLedger{}
	source := newMemSource("b.jpg", "a.jpg")
	ap := NewAutopost(ledger, source)

	preview, err := ap.PreviewCaption(context.Background(), scenarioConfig(t), "")
	require.NoError(t, err)
	require.NotNil(t, preview)
	assert.Equal(t, "a.jpg", preview.Asset.ID)
	assert.Equal(t, "Shot: a.jpg #AI #虚拟人", preview.Caption.Text)
	assert.Equal(t, model.CaptionTemplate, preview.Caption.Source)
	assert.Empty(t, ledger.posts)
	assert.Equal(t, 0, source.opens)
}

func TestPreviewCaption_ExplicitAsset(t *testing.T) {
	ap := NewAutopost(&memLedger{}, newMemSource("a.jpg", "b.jpg"))

	preview, err := ap.PreviewCaption(context.Background(), scenarioConfig(t), "b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Shot: b.jpg #AI #虚拟人", preview.Caption.Text)

	_, err = ap.PreviewCaption(context.Background(), scenarioConfig(t), "missing.jpg")
	assert.True(t, errors.Is(err, ErrAssetNotFound))
}

func TestPreviewCaption_RemoteFailureIsNotRecorded(t *testing.T) {
	ledger := &memLedger{}
	backend := &fakeCaptioner{err: errors.New("quota exceeded")}
	ap := NewAutopost(ledger, newMemSource("a.jpg"), WithCaptionBackend(backend))
	cnf := scenarioConfig(t)
	cnf.OpenAI.APIKey = "sk-test"

	preview, err := ap.PreviewCaption(context.Background(), cnf, "")
	require.NoError(t, err)
	assert.Equal(t, model.CaptionTemplate, preview.Caption.Source)
	assert.Equal(t, 1, backend.callCount())
	assert.Empty(t, ledger.contextsOfErrors())
}

func TestPreviewCaption_NothingLeft(t *testing.T) {
	ledger := &memLedger{}
	ap := NewAutopost(ledger, newMemSource("a.jpg"))
	_, err := ap.RunCycle(context.Background(), scenarioConfig(t))
	require.NoError(t, err)

	preview, err := ap.PreviewCaption(context.Background(), scenarioConfig(t), "")
	require.NoError(t, err)
	assert.Nil(t, preview)
}
