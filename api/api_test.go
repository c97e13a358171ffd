package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopost/autopost"
	"github.com/autopost/autopost/api/middleware"
	apimodel "github.com/autopost/autopost/api/model"
	"github.com/autopost/autopost/assets"
	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/database"
	"github.com/autopost/autopost/internal/trigger"
	"github.com/autopost/autopost/model"
)

type fakeRunner struct {
	report *trigger.Report
	err    error
	opts   []trigger.Options
}

func (f *fakeRunner) Run(_ context.Context, opts trigger.Options) (*trigger.Report, error) {
	f.opts = append(f.opts, opts)
	return f.report, f.err
}

type fakeQueue struct {
	err   error
	calls int
}

func (f *fakeQueue) EnqueueCycle(_ context.Context, _ string) (*asynq.TaskInfo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: autopost.CYCLE_QUEUE}, nil
}

func mockConfig(t *testing.T, mutate func(*config.Configuration)) *config.Configuration {
	t.Helper()
	cnf := &config.Configuration{
		DryRun:  true,
		Caption: config.CaptionConfig{Templates: []string{"Shot: {filename}"}},
		Tweet:   config.TweetConfig{Suffix: "#AI #虚拟人"},
		OpenAI:  config.OpenAIConfig{APIKey: "sk-abcdefghijkl"},
	}
	if mutate != nil {
		mutate(cnf)
	}
	require.NoError(t, cnf.Normalize())
	config.MockConfig(cnf)
	return cnf
}

func newTestAutopost(t *testing.T, files ...string) *autopost.Autopost {
	t.Helper()
	dir := t.TempDir()
	for _, name := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o600))
	}
	db, dialect, err := database.ConnectDB("sqlite://" + filepath.Join(t.TempDir(), "autopost.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	_, err = database.Migrate(db, dialect, autopost.SQLFiles, migrate.Up)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	return autopost.NewAutopost(database.Datasource{Conn: db, Dialect: dialect}, assets.NewDirSource(dir), autopost.WithLogger(logger))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	mockConfig(t, nil)
	a := NewAPI(newTestAutopost(t), &fakeRunner{}).Router()
	w := do(t, a, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "server running")
}

func TestRunCycleThenInspect(t *testing.T) {
	mockConfig(t, nil)
	ap := newTestAutopost(t, "b.jpg", "a.jpg")
	a := NewAPI(ap, trigger.NewRunner(ap)).Router()

	w := do(t, a, http.MethodPost, "/cycles", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var report trigger.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, "a.jpg", report.Outcomes[0].AssetID)
	assert.Equal(t, model.StatusSimulated, report.Outcomes[0].Status)
	assert.Equal(t, "Shot: a.jpg #AI #虚拟人", report.Outcomes[0].Caption)

	w = do(t, a, http.MethodGet, "/posts", "")
	require.Equal(t, http.StatusOK, w.Code)
	var posts []model.PostRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "a.jpg", posts[0].AssetID)
	assert.True(t, posts[0].DryRun)

	w = do(t, a, http.MethodGet, "/posts?asset_id=b.jpg", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = do(t, a, http.MethodGet, "/assets", "")
	require.Equal(t, http.StatusOK, w.Code)
	var views []model.AssetView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "a.jpg", views[0].ID)
	assert.True(t, views[0].Consumed)
	assert.False(t, views[1].Consumed)

	w = do(t, a, http.MethodGet, "/overview", "")
	require.Equal(t, http.StatusOK, w.Code)
	var overview apimodel.Overview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &overview))
	assert.True(t, overview.DryRun)
	assert.Equal(t, int64(1), overview.Stats.Simulated)
	require.NotNil(t, overview.Stats.LastPost)
	assert.Equal(t, "a.jpg", overview.Stats.LastPost.AssetID)
	assert.NotNil(t, overview.NextRun)
	assert.Equal(t, "sk-a***ijkl", overview.Credentials.OpenAIKey)
	assert.False(t, overview.Credentials.TwitterReady)
	assert.NotContains(t, w.Body.String(), "sk-abcdefghijkl")

	w = do(t, a, http.MethodGet, "/errors", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestRunCycle_PassesOverrides(t *testing.T) {
	mockConfig(t, nil)
	runner := &fakeRunner{report: &trigger.Report{}}
	a := NewAPI(newTestAutopost(t), runner).Router()

	w := do(t, a, http.MethodPost, "/cycles", `{"max_posts":3,"dry_run":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, runner.opts, 1)
	assert.Equal(t, 3, runner.opts[0].MaxPosts)
	require.NotNil(t, runner.opts[0].DryRun)
	assert.False(t, *runner.opts[0].DryRun)
	assert.Equal(t, "api", runner.opts[0].Reason)
}

func TestRunCycle_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		runErr error
		want   int
	}{
		{name: "zero max posts", body: `{"max_posts":0}`, want: http.StatusBadRequest},
		{name: "malformed body", body: `{"max_posts":`, want: http.StatusBadRequest},
		{name: "cycle in progress", runErr: trigger.ErrCycleInProgress, want: http.StatusConflict},
		{name: "configuration", runErr: &autopost.ConfigurationError{Field: "max_posts_per_cycle"}, want: http.StatusBadRequest},
		{name: "ledger write", runErr: &autopost.LedgerWriteError{AssetID: "a.jpg"}, want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockConfig(t, nil)
			runner := &fakeRunner{err: tt.runErr, report: &trigger.Report{}}
			a := NewAPI(newTestAutopost(t), runner).Router()

			w := do(t, a, http.MethodPost, "/cycles", tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRunCycle_Async(t *testing.T) {
	mockConfig(t, nil)

	t.Run("queued", func(t *testing.T) {
		queue := &fakeQueue{}
		runner := &fakeRunner{}
		a := NewAPI(newTestAutopost(t), runner, WithQueue(queue)).Router()

		w := do(t, a, http.MethodPost, "/cycles", `{"async":true}`)
		require.Equal(t, http.StatusAccepted, w.Code)
		var resp apimodel.Enqueued
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "task-1", resp.TaskID)
		assert.Equal(t, autopost.CYCLE_QUEUE, resp.Queue)
		assert.Empty(t, runner.opts)
	})

	t.Run("duplicate", func(t *testing.T) {
		a := NewAPI(newTestAutopost(t), &fakeRunner{}, WithQueue(&fakeQueue{err: asynq.ErrDuplicateTask})).Router()
		w := do(t, a, http.MethodPost, "/cycles", `{"async":true}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("overrides rejected", func(t *testing.T) {
		queue := &fakeQueue{}
		a := NewAPI(newTestAutopost(t), &fakeRunner{}, WithQueue(queue)).Router()
		w := do(t, a, http.MethodPost, "/cycles", `{"async":true,"max_posts":2}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, 0, queue.calls)
	})

	t.Run("no redis", func(t *testing.T) {
		a := NewAPI(newTestAutopost(t), &fakeRunner{}).Router()
		w := do(t, a, http.MethodPost, "/cycles", `{"async":true}`)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})
}

func TestListLimitValidation(t *testing.T) {
	mockConfig(t, nil)
	a := NewAPI(newTestAutopost(t), &fakeRunner{}).Router()

	for _, path := range []string{"/posts?limit=0", "/errors?limit=abc", "/posts?limit=1000"} {
		w := do(t, a, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

type staticBreaker string

func (s staticBreaker) State() string { return string(s) }

func TestGetSchedule(t *testing.T) {
	mockConfig(t, func(c *config.Configuration) {
		c.Scheduler.IntervalMinutes = 30
		c.Scheduler.Timezone = "Asia/Shanghai"
	})
	a := NewAPI(newTestAutopost(t), &fakeRunner{}, WithBreaker(staticBreaker("open"))).Router()

	w := do(t, a, http.MethodGet, "/schedule", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp apimodel.Schedule
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "@every 30m", resp.Spec)
	assert.Equal(t, "Asia/Shanghai", resp.Timezone)
	assert.True(t, resp.InitialRun)
	assert.False(t, resp.NextRun.IsZero())

	w = do(t, a, http.MethodGet, "/overview", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"caption_breaker":"open"`)
}

func TestMetricsEndpoint(t *testing.T) {
	mockConfig(t, nil)
	a := NewAPI(newTestAutopost(t), &fakeRunner{}).Router()
	w := do(t, a, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "go_goroutines"))
}

func TestSecureMode(t *testing.T) {
	mockConfig(t, func(c *config.Configuration) {
		c.Server.Secure = true
		c.Server.SecretKey = "s3cret"
	})
	a := NewAPI(newTestAutopost(t), &fakeRunner{}).Router()

	w := do(t, a, http.MethodGet, "/posts", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set(middleware.KeyHeader, "s3cret")
	w = httptest.NewRecorder()
	a.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, a, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPreviewCaption(t *testing.T) {
	mockConfig(t, nil)
	ap := newTestAutopost(t, "b.jpg", "a.jpg")
	a := NewAPI(ap, trigger.NewRunner(ap)).Router()

	w := do(t, a, http.MethodPost, "/captions/preview", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var preview autopost.Preview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Equal(t, "a.jpg", preview.Asset.ID)
	assert.Equal(t, "Shot: a.jpg #AI #虚拟人", preview.Caption.Text)
	assert.Equal(t, model.CaptionTemplate, preview.Caption.Source)

	w = do(t, a, http.MethodPost, "/captions/preview", `{"asset_id":"b.jpg"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Equal(t, "Shot: b.jpg #AI #虚拟人", preview.Caption.Text)

	w = do(t, a, http.MethodPost, "/captions/preview", `{"asset_id":"missing.jpg"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, a, http.MethodPost, "/captions/preview", `{"asset_id":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// previews leave the ledger untouched
	w = do(t, a, http.MethodGet, "/posts", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = do(t, a, http.MethodPost, "/cycles", `{"max_posts":2}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, a, http.MethodPost, "/captions/preview", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "no unconsumed asset left")
}
