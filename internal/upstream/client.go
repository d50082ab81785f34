package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Result is one upstream attempt's outcome. Exactly one of Body and Stream
// is populated on success: Body for unary calls, Stream for streaming calls
// (the caller owns closing it). Transport failures are mapped onto synthetic
// statuses (502 unreachable, 504 deadline) before the Result is built, so
// callers branch on Status alone.
type Result struct {
	Status  int
	Body    []byte
	Stream  io.ReadCloser
	Message string // error message for non-200 results
}

// Retryable reports whether another account might succeed where this
// attempt failed. Only an upstream 403 qualifies.
func (r *Result) Retryable() bool { return r.Status == http.StatusForbidden }

// OK reports a usable 200 response.
func (r *Result) OK() bool { return r.Status == http.StatusOK }

// Client talks to the Code Assist generate endpoints.
type Client struct {
	endpoint      string
	userAgent     string
	httpClient    *http.Client // unary calls, full-request deadline
	streamHTTP    *http.Client // streaming calls, header deadline only
	streamTimeout time.Duration
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	dialTimeout       time.Duration
	tlsTimeout        time.Duration
	headerTimeout     time.Duration
	requestTimeout    time.Duration
	streamReadTimeout time.Duration
	proxyURL          string
}

// WithTimeouts overrides the transport deadlines.
func WithTimeouts(dial, tlsHandshake, header, request, stream time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.dialTimeout = dial
		c.tlsTimeout = tlsHandshake
		c.headerTimeout = header
		c.requestTimeout = request
		c.streamReadTimeout = stream
	}
}

// WithProxy routes upstream traffic through an HTTP(S) proxy.
func WithProxy(proxyURL string) ClientOption {
	return func(c *clientConfig) { c.proxyURL = proxyURL }
}

// NewClient creates a Client for the given Code Assist endpoint.
func NewClient(endpoint, userAgent string, opts ...ClientOption) *Client {
	cfg := &clientConfig{
		dialTimeout:       10 * time.Second,
		tlsTimeout:        10 * time.Second,
		headerTimeout:     60 * time.Second,
		requestTimeout:    120 * time.Second,
		streamReadTimeout: 600 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: cfg.dialTimeout}).DialContext,
		TLSHandshakeTimeout:   cfg.tlsTimeout,
		ResponseHeaderTimeout: cfg.headerTimeout,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
	}
	if cfg.proxyURL != "" {
		if u, err := url.Parse(cfg.proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		} else {
			log.WithError(err).Warn("ignoring invalid proxy URL")
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &Client{
		endpoint:   endpoint,
		userAgent:  userAgent,
		httpClient: &http.Client{Transport: transport, Timeout: cfg.requestTimeout},
		// A streaming response legitimately outlives the unary deadline;
		// only header arrival and per-connection dial are bounded here, the
		// whole-stream deadline is applied per request in GenerateStream.
		streamHTTP:    &http.Client{Transport: transport},
		streamTimeout: cfg.streamReadTimeout,
	}
}

// Generate POSTs a unary :generateContent call and reads the whole body.
func (c *Client) Generate(ctx context.Context, token string, env *Envelope, project string) *Result {
	resp, err := c.post(ctx, c.httpClient, token, env, project, false)
	if err != nil {
		return transportResult(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportResult(err)
	}
	res := &Result{Status: resp.StatusCode, Body: body}
	if resp.StatusCode != http.StatusOK {
		res.Message = extractErrorMessage(body, resp.StatusCode)
		log.Errorf("code assist returned status %d: %s", resp.StatusCode, res.Message)
	}
	return res
}

// GenerateStream POSTs a :streamGenerateContent?alt=sse call and hands back
// the live body. Non-200 responses are drained into a Result so the caller
// can emit a single error frame.
func (c *Client) GenerateStream(ctx context.Context, token string, env *Envelope, project string) *Result {
	// Bound the whole stream so an abandoned upstream read cannot hang
	// forever. The cancel travels with the body and fires on Close.
	streamCtx, cancel := context.WithTimeout(ctx, c.streamTimeout)

	resp, err := c.post(streamCtx, c.streamHTTP, token, env, project, true)
	if err != nil {
		cancel()
		return transportResult(err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		cancel()
		msg := extractErrorMessage(body, resp.StatusCode)
		log.Errorf("code assist returned status %d: %s", resp.StatusCode, msg)
		return &Result{Status: resp.StatusCode, Body: body, Message: msg}
	}
	return &Result{Status: http.StatusOK, Stream: &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}}
}

// cancelReadCloser releases the stream deadline's resources when the
// consumer closes the body.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func (c *Client) post(ctx context.Context, hc *http.Client, token string, env *Envelope, project string, streaming bool) (*http.Response, error) {
	action := "generateContent"
	if streaming {
		action = "streamGenerateContent"
	}
	target := fmt.Sprintf("%s/v1internal:%s", c.endpoint, action)
	if streaming {
		target += "?alt=sse"
	}

	payload, err := env.marshal(project)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	return hc.Do(req)
}

// marshal assembles the final {model, project, request} wire envelope.
func (e *Envelope) marshal(project string) ([]byte, error) {
	out := []byte(`{}`)
	out, err := sjson.SetBytes(out, "model", e.Model)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetBytes(out, "project", project)
	if err != nil {
		return nil, err
	}
	out, err = sjson.SetRawBytes(out, "request", e.Request)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transportResult maps transport failures onto distinct statuses: a
// deadline means the backend was reached but too slow (504), anything else
// means it could not be reached at all (502).
func transportResult(err error) *Result {
	status := http.StatusBadGateway
	msg := fmt.Sprintf("Request failed: %v", err)

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		status = http.StatusGatewayTimeout
		msg = fmt.Sprintf("Upstream timed out: %v", err)
	case errors.As(err, &netErr) && netErr.Timeout():
		status = http.StatusGatewayTimeout
		msg = fmt.Sprintf("Upstream timed out: %v", err)
	}
	log.WithError(err).Error("request to code assist failed")
	return &Result{Status: status, Message: msg}
}

// extractErrorMessage pulls error.message out of an upstream error body,
// preserving it verbatim; absent or unparseable bodies fall back to a
// generic status line.
func extractErrorMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
			return msg.String()
		}
	}
	return fmt.Sprintf("Google API error: %d", status)
}
