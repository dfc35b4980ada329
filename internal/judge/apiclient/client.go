// Package apiclient reports final verdicts to the contest service over HTTP,
// authenticated with a short-lived signed service token.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"arbiter/internal/contest/model"
	appErr "arbiter/pkg/errors"
	"arbiter/pkg/utils/contextkey"
)

const (
	defaultTimeout  = 10 * time.Second
	defaultTokenTTL = 15 * time.Minute

	// refreshSkew renews the token before it actually expires so an in-flight
	// request never carries a token about to lapse.
	refreshSkew = time.Minute
)

// Config configures the report client.
type Config struct {
	BaseURL     string        `yaml:"baseUrl"`
	Timeout     time.Duration `yaml:"timeout"`
	ServiceName string        `yaml:"serviceName"`
	TokenSecret string        `yaml:"tokenSecret"`
	TokenTTL    time.Duration `yaml:"tokenTtl"`
}

// Client posts verdict reports, minting and caching its own HS256 token.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	serviceName string
	secret      []byte
	tokenTTL    time.Duration
	now         func() time.Time

	mu         sync.Mutex
	token      string
	tokenUntil time.Time
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.TokenSecret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	tokenTTL := cfg.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "judge-worker"
	}
	return &Client{
		baseURL:     cfg.BaseURL,
		httpClient:  &http.Client{Timeout: timeout},
		serviceName: serviceName,
		secret:      []byte(cfg.TokenSecret),
		tokenTTL:    tokenTTL,
		now:         time.Now,
	}, nil
}

// ReportVerdict posts the judged submission to the contest service.
func (c *Client) ReportVerdict(ctx context.Context, event model.SubmissionUpdatedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return appErr.Wrapf(err, appErr.EncodeFailed, "encode verdict report failed")
	}

	path := fmt.Sprintf("/internal/v1/contests/%d/submissions/%d/verdict", event.ContestID, event.SubmissionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportFailed, "build verdict request failed")
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID, ok := ctx.Value(contextkey.TraceID).(string); ok && traceID != "" {
		req.Header.Set("X-Trace-Id", traceID)
	}

	token, err := c.serviceToken()
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return appErr.Wrapf(err, appErr.ReportFailed, "verdict request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return appErr.Newf(appErr.ReportFailed, "verdict report rejected: status %d: %s", resp.StatusCode, string(snippet))
	}
	return nil
}

// serviceToken returns the cached token, minting a fresh one when it is
// close to expiry.
func (c *Client) serviceToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.tokenUntil.Add(-refreshSkew)) {
		return c.token, nil
	}

	expiresAt := now.Add(c.tokenTTL)
	claims := jwt.RegisteredClaims{
		Issuer:    c.serviceName,
		Subject:   c.serviceName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.TokenGenerationFailed, "sign service token failed")
	}
	c.token = token
	c.tokenUntil = expiresAt
	return token, nil
}
