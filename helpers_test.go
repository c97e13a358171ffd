package autopost

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/model"
)

// memSource serves assets from memory and counts content reads.
type memSource struct {
	mu      sync.Mutex
	ids     []string
	data    map[string][]byte
	listErr error
	opens   int
}

func newMemSource(ids ...string) *memSource {
	data := make(map[string][]byte, len(ids))
	for _, id := range ids {
		data[id] = encodeTestImage(strings.TrimPrefix(strings.ToLower(path.Ext(id)), "."))
	}
	return &memSource{ids: ids, data: data}
}

// encodeTestImage renders a 2x2 image in the given format, jpeg when unknown.
func encodeTestImage(format string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 1, color.RGBA{B: 255, A: 255})
	var buf bytes.Buffer
	switch format {
	case "png":
		_ = png.Encode(&buf, img)
	case "bmp":
		_ = bmp.Encode(&buf, img)
	case "tiff":
		_ = tiff.Encode(&buf, img, nil)
	default:
		_ = jpeg.Encode(&buf, img, nil)
	}
	return buf.Bytes()
}

func (s *memSource) ListCandidates(_ context.Context) ([]model.Asset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]model.Asset, 0, len(s.ids))
	for _, id := range s.ids {
		out = append(out, model.Asset{ID: id, Size: int64(len(s.data[id]))})
	}
	return out, nil
}

func (s *memSource) Open(_ context.Context, asset model.Asset) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	data, ok := s.data[asset.ID]
	if !ok {
		return nil, errors.New("asset not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// memLedger is an in-memory Ledger with the same consumed-set semantics as the SQL store.
type memLedger struct {
	mu       sync.Mutex
	posts    []model.PostRecord
	errors   []model.ErrorRecord
	writeErr error
	// failAfter makes RecordPost fail once this many posts exist. Zero disables it.
	failAfter int
}

func (l *memLedger) RecordPost(_ context.Context, record *model.PostRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	if l.failAfter > 0 && len(l.posts) >= l.failAfter {
		return errors.New("store unavailable")
	}
	if record.Status.Consumes() {
		for _, p := range l.posts {
			if p.AssetID == record.AssetID && p.Status.Consumes() {
				return errors.New("asset already consumed")
			}
		}
	}
	record.PostID = model.GenerateUUIDWithSuffix("pst")
	l.posts = append(l.posts, *record)
	return nil
}

func (l *memLedger) RecordError(_ context.Context, record *model.ErrorRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	record.ErrorID = model.GenerateUUIDWithSuffix("err")
	l.errors = append(l.errors, *record)
	return nil
}

func (l *memLedger) IsConsumed(ctx context.Context, assetID string) (bool, error) {
	consumed, err := l.ConsumedAssetIDs(ctx)
	if err != nil {
		return false, err
	}
	_, ok := consumed[assetID]
	return ok, nil
}

func (l *memLedger) ConsumedAssetIDs(_ context.Context) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]struct{})
	for _, p := range l.posts {
		if p.Status.Consumes() {
			out[p.AssetID] = struct{}{}
		}
	}
	return out, nil
}

func (l *memLedger) ListPosts(_ context.Context, limit int) ([]model.PostRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.PostRecord, 0, len(l.posts))
	for i := len(l.posts) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, l.posts[i])
	}
	return out, nil
}

func (l *memLedger) ListPostsByAsset(_ context.Context, assetID string) ([]model.PostRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []model.PostRecord
	for _, p := range l.posts {
		if p.AssetID == assetID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (l *memLedger) ListErrors(_ context.Context, limit int) ([]model.ErrorRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ErrorRecord, 0, len(l.errors))
	for i := len(l.errors) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, l.errors[i])
	}
	return out, nil
}

func (l *memLedger) PostStats(_ context.Context) (model.PostStats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var stats model.PostStats
	for i, p := range l.posts {
		switch p.Status {
		case model.StatusPublished:
			stats.Published++
		case model.StatusSimulated:
			stats.Simulated++
		case model.StatusFailed:
			stats.Failed++
		}
		if i == len(l.posts)-1 {
			last := p
			stats.LastPost = &last
		}
	}
	return stats, nil
}

func (l *memLedger) contextsOfErrors() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.errors))
	for _, e := range l.errors {
		out = append(out, e.Context)
	}
	return out
}

// fakeCaptioner returns a fixed text or error and counts calls.
type fakeCaptioner struct {
	mu      sync.Mutex
	text    string
	err     error
	block   bool
	calls   int
	prompts []string
}

func (f *fakeCaptioner) Complete(ctx context.Context, prompt, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.text, f.err
}

func (f *fakeCaptioner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakePublishBackend records every CreatePost call.
type fakePublishBackend struct {
	mu     sync.Mutex
	calls  int
	media  []Media
	texts  []string
	ids    []string
	errs   []error
	panics bool
}

func (f *fakePublishBackend) CreatePost(_ context.Context, media Media, text string, _ config.TwitterConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.panics {
		panic("backend exploded")
	}
	i := f.calls
	f.calls++
	f.media = append(f.media, media)
	f.texts = append(f.texts, text)
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.ids) {
		return f.ids[i], nil
	}
	return "1790000000000000000", nil
}

func (f *fakePublishBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type eventRecorder struct {
	mu      sync.Mutex
	records []model.PostRecord
}

func (e *eventRecorder) PostRecorded(_ context.Context, record model.PostRecord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records = append(e.records, record)
	return nil
}

var fixedNow = time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

func scenarioConfig(t *testing.T) *config.Configuration {
	t.Helper()
	cnf := &config.Configuration{
		DryRun:           true,
		MaxPostsPerCycle: 1,
		Caption:          config.CaptionConfig{Templates: []string{"Shot: {filename}"}},
		Tweet:            config.TweetConfig{Suffix: "#AI #虚拟人"},
	}
	require.NoError(t, cnf.Normalize())
	return cnf
}

func liveCredentials() config.TwitterConfig {
	return config.TwitterConfig{
		APIKey:            "consumer-key",
		APISecret:         "consumer-secret",
		AccessToken:       "access-token",
		AccessTokenSecret: "access-secret",
	}
}
