package autopost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/dghubble/oauth1"

	"github.com/autopost/autopost/config"
	"github.com/autopost/autopost/internal/request"
)

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

const (
	defaultXAPIBaseURL    = "https://api.twitter.com"
	defaultXUploadBaseURL = "https://upload.twitter.com"
)

// XBackend publishes to X with OAuth 1.0a user credentials: a v1.1 media upload
// followed by a v2 tweet referencing the uploaded media.
type XBackend struct {
	apiBaseURL    string
	uploadBaseURL string
	httpClient    *http.Client
}

// NewXBackend uses the configured base URLs, or the public endpoints when unset.
// httpClient provides the transport the signed client is built on and may be nil.
func NewXBackend(cnf config.TwitterConfig, httpClient *http.Client) *XBackend {
	b := &XBackend{
		apiBaseURL:    strings.TrimRight(cnf.APIBaseURL, "/"),
		uploadBaseURL: strings.TrimRight(cnf.UploadBaseURL, "/"),
		httpClient:    httpClient,
	}
	if b.apiBaseURL == "" {
		b.apiBaseURL = defaultXAPIBaseURL
	}
	if b.uploadBaseURL == "" {
		b.uploadBaseURL = defaultXUploadBaseURL
	}
	return b
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type createTweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (b *XBackend) CreatePost(ctx context.Context, media Media, text string, creds config.TwitterConfig) (string, error) {
	client := b.signedClient(ctx, creds)

	mediaID, err := b.upload(ctx, client, media)
	if err != nil {
		return "", err
	}

	payload := createTweetRequest{Text: text, Media: &tweetMedia{MediaIDs: []string{mediaID}}}
	body, err := request.ToJsonReq(payload)
	if err != nil {
		return "", &RemotePublishError{Stage: "create", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.apiBaseURL+"/2/tweets", body)
	if err != nil {
		return "", &RemotePublishError{Stage: "create", Err: err}
	}

	var created createTweetResponse
	if _, err := request.Call(client, req, &created); err != nil {
		return "", publishError("create", err)
	}
	if created.Data.ID == "" {
		return "", &RemotePublishError{Stage: "create", Err: errors.New("response carried no tweet id")}
	}
	return created.Data.ID, nil
}

func (b *XBackend) upload(ctx context.Context, client *http.Client, media Media) (string, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="media"; filename="%s"`, quoteEscaper.Replace(media.Name)))
	contentType := media.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := form.CreatePart(header)
	if err != nil {
		return "", &RemotePublishError{Stage: "upload", Err: err}
	}
	if _, err := part.Write(media.Data); err != nil {
		return "", &RemotePublishError{Stage: "upload", Err: err}
	}
	if err := form.Close(); err != nil {
		return "", &RemotePublishError{Stage: "upload", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.uploadBaseURL+"/1.1/media/upload.json", &buf)
	if err != nil {
		return "", &RemotePublishError{Stage: "upload", Err: err}
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var uploaded mediaUploadResponse
	if _, err := request.Call(client, req, &uploaded); err != nil {
		return "", publishError("upload", err)
	}
	if uploaded.MediaIDString == "" {
		return "", &RemotePublishError{Stage: "upload", Err: fmt.Errorf("response carried no media id")}
	}
	return uploaded.MediaIDString, nil
}

func (b *XBackend) signedClient(ctx context.Context, creds config.TwitterConfig) *http.Client {
	if b.httpClient != nil {
		ctx = context.WithValue(ctx, oauth1.HTTPClient, b.httpClient)
	}
	cfg := oauth1.NewConfig(creds.APIKey, creds.APISecret)
	return cfg.Client(ctx, oauth1.NewToken(creds.AccessToken, creds.AccessTokenSecret))
}

func publishError(stage string, err error) error {
	var statusErr *request.StatusError
	if errors.As(err, &statusErr) {
		return &RemotePublishError{Stage: stage, StatusCode: statusErr.StatusCode, Err: err}
	}
	return &RemotePublishError{Stage: stage, Err: err}
}
