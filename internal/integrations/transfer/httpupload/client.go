package httpupload

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/BearBump/TrackIntake/internal/integrations/transfer"
	"github.com/pkg/errors"
)

// UploadPath: relay-эндпоинт, который принимает документ и кладёт его на SFTP.
const UploadPath = "/api/upload-sftp"

type Client struct {
	baseURL string
	httpc   *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

// Request is the relay payload. Content is sent as text, exactly as produced by the codec.
type Request struct {
	Content  string `json:"content"`
	Filename string `json:"filename"`
}

type Response struct {
	Success  bool   `json:"success,omitempty"`
	Filename string `json:"filename,omitempty"`
	Error    string `json:"error,omitempty"`
	Details  string `json:"details,omitempty"`
}

func (c *Client) Upload(ctx context.Context, content []byte, filename string) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = UploadPath

	body, err := json.Marshal(Request{Content: string(content), Filename: filename})
	if err != nil {
		return errors.Wrap(err, "marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return transfer.Classify(errors.Wrap(err, "do request"))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var rb Response
		_ = json.NewDecoder(resp.Body).Decode(&rb)
		if rb.Details != "" {
			return errors.Errorf("upload relay http %d: %s: %s", resp.StatusCode, rb.Error, rb.Details)
		}
		return errors.Errorf("upload relay http %d", resp.StatusCode)
	}
	return nil
}
