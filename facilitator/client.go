// Package facilitator implements the HTTP client for x402 facilitator
// services. The facilitator owns all chain access: it verifies signed
// payment payloads against requirements and settles them on-chain.
//
// Transport and decoding failures never escape Verify or Settle as
// errors. They are folded into invalid or unsuccessful results so the
// gate can always answer with a fresh 402 challenge instead of a 5xx.
package facilitator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eventpay/x402gate/logger"
	"github.com/eventpay/x402gate/metrics"
	"github.com/eventpay/x402gate/types"
)

const (
	// DefaultVerifyTimeout bounds a single verify call.
	DefaultVerifyTimeout = 5 * time.Second
	// DefaultSettleTimeout bounds a single settle call. Settlement waits
	// for on-chain confirmation so it runs much longer than verify.
	DefaultSettleTimeout = 60 * time.Second

	reasonUnavailable = "facilitator_unavailable"
)

// AuthHeadersFunc supplies per-request authentication headers, letting
// callers plug in rotating bearer tokens or signed API keys.
type AuthHeadersFunc func() map[string]string

// Client talks to a single facilitator service.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	authHeaders   AuthHeadersFunc
	verifyTimeout time.Duration
	settleTimeout time.Duration
	logger        logger.Logger
	metrics       metrics.Recorder
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithAuthHeaders installs a per-request auth header provider.
func WithAuthHeaders(fn AuthHeadersFunc) Option {
	return func(c *Client) {
		c.authHeaders = fn
	}
}

// WithVerifyTimeout overrides the verify call timeout.
func WithVerifyTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.verifyTimeout = d
	}
}

// WithSettleTimeout overrides the settle call timeout.
func WithSettleTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.settleTimeout = d
	}
}

// WithLogger sets the structured logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = r
	}
}

// New creates a facilitator client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{},
		verifyTimeout: DefaultVerifyTimeout,
		settleTimeout: DefaultSettleTimeout,
		logger:        logger.NoopLogger{},
		metrics:       metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured facilitator endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type verifyRequest struct {
	X402Version         int                        `json:"x402Version"`
	PaymentPayload      *types.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements *types.PaymentRequirements `json:"paymentRequirements"`
}

// Verify asks the facilitator whether a payment payload satisfies the
// requirements. The returned response is always non-nil; any transport
// or decoding failure becomes an invalid result with a reason.
func (c *Client) Verify(ctx context.Context, payment *types.PaymentPayload, requirements *types.PaymentRequirements) *types.VerifyResponse {
	start := time.Now()
	defer func() {
		c.metrics.ObserveLatency("facilitator_verify", time.Since(start), map[string]string{
			"network": payment.Network,
		})
	}()

	body, err := c.post(ctx, "/verify", c.verifyTimeout, &verifyRequest{
		X402Version:         types.ProtocolVersion,
		PaymentPayload:      payment,
		PaymentRequirements: requirements,
	})
	if err != nil {
		c.logger.Warn("facilitator verify unreachable", map[string]any{
			"network": payment.Network,
			"error":   err.Error(),
		})
		return &types.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("%s: %v", reasonUnavailable, err),
		}
	}

	var resp types.VerifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &types.VerifyResponse{
			IsValid:       false,
			InvalidReason: fmt.Sprintf("%s: invalid verify response: %v", reasonUnavailable, err),
		}
	}
	return &resp
}

// Settle asks the facilitator to execute a verified payment on-chain.
// The returned response is always non-nil; failures become
// unsuccessful results with a reason.
func (c *Client) Settle(ctx context.Context, payment *types.PaymentPayload, requirements *types.PaymentRequirements) *types.SettleResponse {
	start := time.Now()
	defer func() {
		c.metrics.ObserveLatency("facilitator_settle", time.Since(start), map[string]string{
			"network": payment.Network,
		})
	}()

	body, err := c.post(ctx, "/settle", c.settleTimeout, &verifyRequest{
		X402Version:         types.ProtocolVersion,
		PaymentPayload:      payment,
		PaymentRequirements: requirements,
	})
	if err != nil {
		c.logger.Warn("facilitator settle unreachable", map[string]any{
			"network": payment.Network,
			"error":   err.Error(),
		})
		return &types.SettleResponse{
			Success:     false,
			Network:     payment.Network,
			ErrorReason: fmt.Sprintf("%s: %v", reasonUnavailable, err),
		}
	}

	var resp types.SettleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return &types.SettleResponse{
			Success:     false,
			Network:     payment.Network,
			ErrorReason: fmt.Sprintf("%s: invalid settle response: %v", reasonUnavailable, err),
		}
	}
	if resp.Network == "" {
		resp.Network = payment.Network
	}
	return &resp
}

// Supported fetches the scheme and network pairs the facilitator can
// handle, including any fee payer addresses it advertises.
func (c *Client) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supported request: %w", err)
	}
	c.applyAuth(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &types.X402Error{
			Code:    types.ErrFacilitatorUnavailable,
			Message: fmt.Sprintf("facilitator unreachable: %v", err),
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, &types.X402Error{
			Code:    types.ErrFacilitatorUnavailable,
			Message: fmt.Sprintf("facilitator returned status %d", httpResp.StatusCode),
		}
	}

	var resp types.SupportedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode supported response: %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, timeout time.Duration, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facilitator returned status %d: %s", httpResp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

func (c *Client) applyAuth(req *http.Request) {
	if c.authHeaders == nil {
		return
	}
	for k, v := range c.authHeaders() {
		req.Header.Set(k, v)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
