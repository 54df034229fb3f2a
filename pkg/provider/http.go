package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/net/publicsuffix"
)

const maxResponseBytes = 1 << 20

// Response statuses understood by HTTPAuthenticator.
const (
	statusOK                = "ok"
	statusTwoFactorRequired = "two_factor_required"
	statusChallengeRequired = "challenge_required"
)

// HTTPConfig describes a JSON login endpoint.
//
// Login posts {"username","password"} to LoginPath. The reply carries a
// "status" field: "ok" with the token at TokenField (or in the TokenCookie
// cookie), "two_factor_required" with a "two_factor_identifier", or
// "challenge_required". Anything else is a failure described by "message"
// and "error_type".
type HTTPConfig struct {
	BaseURL       string
	LoginPath     string
	TwoFactorPath string
	TokenField    string
	TokenCookie   string
	UserAgent     string
	Timeout       time.Duration
}

// HTTPAuthenticator is an Authenticator with its own cookie jar.
type HTTPAuthenticator struct {
	cfg       HTTPConfig
	base      *url.URL
	client    *http.Client
	transport *http.Transport

	mu         sync.Mutex
	username   string
	identifier string
	closed     bool
}

// NewHTTPAuthenticator creates a client with an empty cookie jar.
func NewHTTPAuthenticator(cfg HTTPConfig) (*HTTPAuthenticator, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid provider base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid provider base url %q", cfg.BaseURL)
	}

	if err := validateEndpointPath("login path", cfg.LoginPath); err != nil {
		return nil, err
	}
	if err := validateEndpointPath("two-factor path", cfg.TwoFactorPath); err != nil {
		return nil, err
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	return &HTTPAuthenticator{
		cfg:       cfg,
		base:      base,
		transport: transport,
		client: &http.Client{
			Jar:       jar,
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
	}, nil
}

// validateEndpointPath requires an absolute path below the base URL.
func validateEndpointPath(name, path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("provider %s must start with '/', got %q", name, path)
	}
	return nil
}

// NewHTTPFactory returns a Factory producing one HTTPAuthenticator per call.
func NewHTTPFactory(cfg HTTPConfig) Factory {
	return func(ctx context.Context) (Authenticator, error) {
		return NewHTTPAuthenticator(cfg)
	}
}

// Login implements Authenticator.
func (a *HTTPAuthenticator) Login(ctx context.Context, username, password string) (string, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return "", ErrClientClosed
	}
	a.identifier = ""
	a.username = username
	a.mu.Unlock()

	body, endpoint, err := a.post(ctx, a.cfg.LoginPath, map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return "", err
	}

	switch gjson.GetBytes(body, "status").String() {
	case statusOK:
		return a.extractToken(body, endpoint)
	case statusTwoFactorRequired:
		a.mu.Lock()
		a.identifier = gjson.GetBytes(body, "two_factor_identifier").String()
		a.mu.Unlock()
		return "", ErrSecondFactorRequired
	case statusChallengeRequired:
		return "", ErrChallengeRequired
	default:
		return "", providerError(body)
	}
}

// TwoFactorLogin implements Authenticator.
func (a *HTTPAuthenticator) TwoFactorLogin(ctx context.Context, code string) (string, error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return "", ErrClientClosed
	}
	username, identifier := a.username, a.identifier
	a.mu.Unlock()

	if username == "" {
		return "", ErrNoPendingSecondFactor
	}

	body, endpoint, err := a.post(ctx, a.cfg.TwoFactorPath, map[string]string{
		"username":              username,
		"verification_code":     code,
		"two_factor_identifier": identifier,
	})
	if err != nil {
		return "", err
	}

	if gjson.GetBytes(body, "status").String() != statusOK {
		return "", providerError(body)
	}

	a.mu.Lock()
	a.identifier = ""
	a.mu.Unlock()

	return a.extractToken(body, endpoint)
}

// Close drops the login state and idle connections.
func (a *HTTPAuthenticator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true
	a.username = ""
	a.identifier = ""
	a.transport.CloseIdleConnections()
	return nil
}

func (a *HTTPAuthenticator) post(ctx context.Context, path string, payload map[string]string) ([]byte, *url.URL, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := a.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if a.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", a.cfg.UserAgent)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("provider request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read provider response: %w", err)
	}

	if !gjson.ValidBytes(body) {
		if resp.StatusCode >= 300 {
			return nil, nil, &Error{Code: strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
		}
		return nil, nil, fmt.Errorf("provider returned a non-JSON response")
	}

	return body, endpoint, nil
}

// extractToken prefers the body field and falls back to the cookie set for endpoint.
func (a *HTTPAuthenticator) extractToken(body []byte, endpoint *url.URL) (string, error) {
	if a.cfg.TokenField != "" {
		if token := gjson.GetBytes(body, a.cfg.TokenField).String(); token != "" {
			return token, nil
		}
	}
	if a.cfg.TokenCookie != "" {
		for _, c := range a.client.Jar.Cookies(endpoint) {
			if c.Name == a.cfg.TokenCookie && c.Value != "" {
				return c.Value, nil
			}
		}
	}
	return "", ErrEmptyToken
}

func providerError(body []byte) error {
	res := gjson.GetManyBytes(body, "error_type", "message")
	return &Error{Code: res[0].String(), Message: res[1].String()}
}
