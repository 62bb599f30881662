package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stone-age-io/inventory-agent/internal/config"
	"github.com/stone-age-io/inventory-agent/internal/utils"
	"go.uber.org/zap"
)

const userAgent = "inventory-agent/1.0"

// StatusError is returned when the inventory server answers with a non-2xx status
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inventory server returned %d: %s", e.StatusCode, e.Body)
}

// RequestError is returned when the request never got an HTTP response
// (DNS, connection refused, TLS, timeout)
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("inventory request failed: %v", e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Reporter sends inventory payloads to the inventory server
type Reporter struct {
	url      string
	username string
	password string
	client   *http.Client
	logger   *zap.Logger
}

// NewReporter creates a reporter for the configured server. TLS verification
// is on unless the configuration explicitly disables it.
func NewReporter(cfg config.ServerConfig, logger *zap.Logger) (*Reporter, error) {
	tlsConfig, err := utils.NewTLSConfig(cfg.TLS, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create TLS config: %w", err)
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSClientConfig:     tlsConfig,
			TLSHandshakeTimeout: 10 * time.Second,
			// One request a day; nothing to keep alive
			DisableKeepAlives: true,
		},
	}

	return &Reporter{
		url:      cfg.URL,
		username: cfg.Username,
		password: cfg.Password,
		client:   client,
		logger:   logger,
	}, nil
}

// Send POSTs the payload and returns a *StatusError, a *RequestError or a
// generic error on failure
func (r *Reporter) Send(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	req.SetBasicAuth(r.username, r.password)

	resp, err := r.client.Do(req)
	if err != nil {
		return &RequestError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	io.Copy(io.Discard, resp.Body)

	return nil
}

// Report sends the payload and logs any failure. It never panics and never
// returns an error; the result tells whether the server accepted the report.
func (r *Reporter) Report(ctx context.Context, payload Payload) (sent bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("Unexpected error sending inventory report",
				zap.String("url", r.url),
				zap.Any("panic", rec))
			sent = false
		}
	}()

	err := r.Send(ctx, payload)
	if err == nil {
		r.logger.Info("Inventory report sent",
			zap.String("url", r.url),
			zap.String("hostname", payload.Hostname),
			zap.Strings("virtualization_method", payload.VirtualizationMethod))
		return true
	}

	var statusErr *StatusError
	var requestErr *RequestError
	switch {
	case errors.As(err, &statusErr):
		r.logger.Warn("Inventory server rejected report",
			zap.String("url", r.url),
			zap.Int("status", statusErr.StatusCode),
			zap.String("body", statusErr.Body))
	case errors.As(err, &requestErr):
		r.logger.Warn("Inventory report request failed",
			zap.String("url", r.url),
			zap.Error(requestErr.Err))
	default:
		r.logger.Warn("Unexpected error sending inventory report",
			zap.String("url", r.url),
			zap.Error(err))
	}

	return false
}
