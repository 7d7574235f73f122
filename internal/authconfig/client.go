package authconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/koustreak/tablekit/internal/errs"
)

// API reads and patches the auth configuration of one project.
type API interface {
	Get(ctx context.Context) (Config, error)
	Update(ctx context.Context, payload Config) (Config, error)
}

// ClientConfig configures Client.
type ClientConfig struct {
	BaseURL     string
	ProjectRef  string
	AccessToken string
	Timeout     time.Duration
}

// Client talks to GET/PATCH {base}/v1/projects/{ref}/config/auth.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient validates cfg and returns a Client. A zero timeout means 30s.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "auth config base URL is required")
	}
	if cfg.ProjectRef == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "auth config project ref is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid auth config base URL", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/v1/projects/" + url.PathEscape(cfg.ProjectRef) + "/config/auth",
		token:      cfg.AccessToken,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Get fetches the full settings object.
func (c *Client) Get(ctx context.Context) (Config, error) {
	return c.do(ctx, http.MethodGet, nil, "fetch auth config")
}

// Update PATCHes payload and returns the settings the server reports back.
func (c *Client) Update(ctx context.Context, payload Config) (Config, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "encode auth config payload", err)
	}
	return c.do(ctx, http.MethodPatch, body, "update auth config")
}

func (c *Client) do(ctx context.Context, method string, body []byte, msg string) (Config, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, reader)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, msg, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, mapError(err, msg)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, mapError(err, msg)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, raw, msg)
	}

	cfg := Config{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return cfg, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindQueryFailed, msg+": malformed response", err)
	}
	return cfg, nil
}

// mapError translates transport errors into a *errs.Error.
func mapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return errs.Wrap(errs.ErrKindTimeout, msg, err)
	}
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// statusError keeps the server's message so callers can show it verbatim.
func statusError(status int, body []byte, msg string) error {
	text := serverMessage(body)
	if text == "" {
		text = http.StatusText(status)
	}
	text = fmt.Sprintf("%s: %s", msg, text)

	switch {
	case status == http.StatusNotFound:
		return errs.New(errs.ErrKindNotFound, text)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return errs.New(errs.ErrKindPermissionDenied, text)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return errs.New(errs.ErrKindInvalidInput, text)
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return errs.New(errs.ErrKindTimeout, text)
	default:
		return errs.New(errs.ErrKindQueryFailed, text)
	}
}

func serverMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Msg     string `json:"msg"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, s := range []string{payload.Message, payload.Msg, payload.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(body))
}
