package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"

	"git.home.luguber.info/inful/memobackup/internal/config"
	"git.home.luguber.info/inful/memobackup/internal/foundation/errors"
)

// SilentHeader marks uploads that should not raise notifications on the server side.
const SilentHeader = "X-Memobackup-Silent"

// HTTPClient uploads backups with PUT {base_url}/{file_name}, authenticated
// with a static OAuth2 bearer token.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client for cfg. base is the underlying transport
// (http.DefaultTransport when nil).
func NewHTTPClient(cfg config.HTTPRemoteConfig, base http.RoundTripper) *HTTPClient {
	if base == nil {
		base = http.DefaultTransport
	}
	c := &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
	}
	c.client = &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}),
			Base:   base,
		},
	}
	return c
}

func (c *HTTPClient) Name() string { return "http" }

func (c *HTTPClient) Upload(ctx context.Context, fileName string, content []byte, silent bool) (UploadResult, error) {
	if err := validateUpload(fileName, content); err != nil {
		return UploadResult{}, err
	}
	if err := c.connected(); err != nil {
		return UploadResult{}, err
	}

	target := c.baseURL + "/" + url.PathEscape(fileName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(content))
	if err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryMalformedRequest, "build upload request").Build()
	}
	req.Header.Set("Content-Type", "application/json")
	if silent {
		req.Header.Set(SilentHeader, "true")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return UploadResult{}, errors.WrapError(err, errors.CategoryNetwork, "upload request failed").
			WithContext("url", target).
			Retryable().
			Build()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if err := classifyStatus(resp, "upload"); err != nil {
		return UploadResult{}, err
	}

	location := resp.Header.Get("Location")
	if location == "" {
		location = target
	}
	return UploadResult{FileName: fileName, Location: location, Bytes: len(content)}, nil
}

// Check sends an authenticated HEAD request to the base URL.
func (c *HTTPClient) Check(ctx context.Context) error {
	if err := c.connected(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "invalid remote URL").Build()
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.WrapError(err, errors.CategoryNetwork, "remote unreachable").
			WithContext("url", c.baseURL).
			Retryable().
			Build()
	}
	_ = resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed {
		// reachable and authenticated; the base path just is not a resource
		return nil
	}
	return classifyStatus(resp, "check")
}

func (c *HTTPClient) connected() error {
	if c.baseURL == "" {
		return errors.NotConnectedError("no backup URL configured").Build()
	}
	if c.token == "" {
		return errors.NotConnectedError("no access token configured").Build()
	}
	return nil
}

// classifyStatus maps non-2xx responses: 401/403 auth, 429 and 5xx retryable, other 4xx malformed.
func classifyStatus(resp *http.Response, op string) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}
	msg := fmt.Sprintf("remote %s returned %s", op, resp.Status)
	var b *errors.ErrorBuilder
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		b = errors.AuthError(msg)
	case code == http.StatusTooManyRequests:
		b = errors.NetworkError(msg).RateLimit()
	case code >= 500:
		b = errors.NetworkError(msg)
	default:
		b = errors.MalformedRequestError(msg)
	}
	return b.WithContext("status", code).WithContext("url", resp.Request.URL.String()).Build()
}

var _ Client = (*HTTPClient)(nil)
