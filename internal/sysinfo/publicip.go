package sysinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Kinds of public IP lookup failure, used as the "kind" log field
const (
	LookupHTTPError       = "http_error"
	LookupConnectionError = "connection_error"
	LookupTimeout         = "timeout"
	LookupInvalidResponse = "invalid_response"
	LookupRequestError    = "request_error"
)

// LookupError is a classified public IP lookup failure
type LookupError struct {
	Kind string
	Err  error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("public ip lookup %s: %v", e.Kind, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// ipifyResponse is the api.ipify.org ?format=json body
type ipifyResponse struct {
	IP string `json:"ip"`
}

// PublicIPResolver asks an external service for the host's public IPv4
type PublicIPResolver struct {
	url    string
	client *http.Client
	logger *zap.Logger
}

// NewPublicIPResolver creates a resolver bounded by timeout
func NewPublicIPResolver(url string, timeout time.Duration, logger *zap.Logger) *PublicIPResolver {
	return &PublicIPResolver{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Lookup returns the public IPv4, or nil after logging why it failed
func (r *PublicIPResolver) Lookup(ctx context.Context) *string {
	ip, err := r.lookup(ctx)
	if err != nil {
		kind := LookupRequestError
		var lerr *LookupError
		if errors.As(err, &lerr) {
			kind = lerr.Kind
		}
		r.logger.Warn("Public IP lookup failed",
			zap.String("url", r.url),
			zap.String("kind", kind),
			zap.Error(err))
		return nil
	}

	r.logger.Debug("Public IP resolved", zap.String("ip", ip))
	return &ip
}

func (r *PublicIPResolver) lookup(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return "", &LookupError{Kind: LookupRequestError, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", &LookupError{Kind: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &LookupError{Kind: LookupHTTPError, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	var body ipifyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body); err != nil {
		// A body read cut short by the client timeout is still a timeout
		return "", &LookupError{Kind: classifyTransportError(err), Err: err}
	}

	addr, err := netip.ParseAddr(strings.TrimSpace(body.IP))
	if err != nil {
		return "", &LookupError{Kind: LookupInvalidResponse, Err: err}
	}
	if !addr.Unmap().Is4() {
		return "", &LookupError{Kind: LookupInvalidResponse, Err: fmt.Errorf("%s is not an IPv4 address", addr)}
	}

	return addr.Unmap().String(), nil
}

func classifyTransportError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return LookupTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return LookupTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return LookupConnectionError
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return LookupInvalidResponse
	}
	return LookupRequestError
}
