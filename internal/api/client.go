// Package api is a thin JSON client for the master's /api/v1 REST gateway.
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

const apiPrefix = "/api/v1"

// Client talks to one master.
type Client struct {
	base       *url.URL
	httpclient *http.Client
	logger     zerolog.Logger

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpclient = hc
		return nil
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) error {
		c.token = token
		return nil
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d > 0 {
			c.httpclient.Timeout = d
		}
		return nil
	}
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// WithCAFile trusts the PEM certificates in path in addition to the system pool.
func WithCAFile(path string) Option {
	return func(c *Client) error {
		if path == "" {
			return nil
		}
		pem, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading CA file: %w", err)
		}
		hc, err := trustCA(c.httpclient, pem)
		if err != nil {
			return err
		}
		c.httpclient = hc
		return nil
	}
}

// NewClient creates a client for the master at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("master URL is empty")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid master URL %q: %w", baseURL, err)
	}

	c := &Client{
		base:       u,
		httpclient: &http.Client{Timeout: DefaultTimeout},
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// BaseURL returns the master URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Login exchanges credentials for a session token and remembers it.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResponse, error) {
	var resp LoginResponse
	body := loginRequest{Username: username, Password: password}
	if err := c.call(ctx, http.MethodPost, "/auth/login", nil, body, &resp); err != nil {
		return LoginResponse{}, err
	}
	c.SetToken(resp.Token)
	return resp, nil
}

// Logout invalidates the session token and forgets it.
func (c *Client) Logout(ctx context.Context) error {
	err := c.call(ctx, http.MethodPost, "/auth/logout", nil, nil, nil)
	c.SetToken("")
	return err
}

// CurrentUser returns the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var resp currentUserResponse
	if err := c.call(ctx, http.MethodGet, "/me", nil, nil, &resp); err != nil {
		return User{}, err
	}
	return resp.User, nil
}

// Users lists all users.
func (c *Client) Users(ctx context.Context) ([]User, error) {
	var resp usersResponse
	if err := c.call(ctx, http.MethodGet, "/users", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// Workspaces lists workspaces. Archived ones are included only when asked.
func (c *Client) Workspaces(ctx context.Context, includeArchived bool) ([]Workspace, error) {
	q := url.Values{}
	if !includeArchived {
		q.Set("archived", "false")
	}
	var resp workspacesResponse
	if err := c.call(ctx, http.MethodGet, "/workspaces", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workspaces, nil
}

// Workspace fetches one workspace.
func (c *Client) Workspace(ctx context.Context, id int) (Workspace, error) {
	var resp workspaceResponse
	if err := c.call(ctx, http.MethodGet, "/workspaces/"+strconv.Itoa(id), nil, nil, &resp); err != nil {
		return Workspace{}, err
	}
	return resp.Workspace, nil
}

// ResourcePools lists the cluster's resource pools.
func (c *Client) ResourcePools(ctx context.Context) ([]ResourcePool, error) {
	var resp resourcePoolsResponse
	if err := c.call(ctx, http.MethodGet, "/resource-pools", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.ResourcePools, nil
}

// MasterInfo returns version and cluster identity.
func (c *Client) MasterInfo(ctx context.Context) (MasterInfo, error) {
	var resp MasterInfo
	if err := c.call(ctx, http.MethodGet, "/master", nil, nil, &resp); err != nil {
		return MasterInfo{}, err
	}
	return resp, nil
}

// Agents lists registered agents.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	var resp agentsResponse
	if err := c.call(ctx, http.MethodGet, "/agents", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// UserSettings returns the stored preferences of the current user.
func (c *Client) UserSettings(ctx context.Context) ([]UserSetting, error) {
	var resp userSettingsResponse
	if err := c.call(ctx, http.MethodGet, "/users/setting", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Settings, nil
}

// Do sends a request to path (relative to the master root, query included)
// and discards the body. It returns the status code; non-2xx answers also
// return a *ResponseError.
func (c *Client) Do(ctx context.Context, method, path string, body any) (int, error) {
	req, err := c.newRequest(ctx, method, c.rawURL(path), body)
	if err != nil {
		return 0, err
	}
	resp, err := c.send(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, parseResponseError(method, req.URL.Path, resp.StatusCode, b)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (c *Client) call(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := c.apipath(path)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := c.newRequest(ctx, method, u, body)
	if err != nil {
		return err
	}

	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return unmarshalJSONResponse(method, apiPrefix+path, resp, out)
}

func (c *Client) newRequest(ctx context.Context, method, u string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.httpclient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); errors.Is(ctxErr, context.Canceled) {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestCancelled, req.Method, req.URL.Path, ctxErr)
		}
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("master request")
	return resp, nil
}

// apipath joins path onto the api root.
func (c *Client) apipath(path string) string {
	return c.base.String() + apiPrefix + "/" + strings.TrimPrefix(path, "/")
}

func (c *Client) rawURL(path string) string {
	return c.base.String() + "/" + strings.TrimPrefix(path, "/")
}

func unmarshalJSONResponse(method, path string, resp *http.Response, out any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", method, path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return parseResponseError(method, path, resp.StatusCode, body)
	}

	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{Path: path, Err: err}
	}
	return nil
}

func trustCA(hc *http.Client, pem []byte) (*http.Client, error) {
	base := http.DefaultTransport
	if hc.Transport != nil {
		base = hc.Transport
	}
	tran, ok := base.(*http.Transport)
	if !ok {
		return nil, errors.New("failed to add ca cert: unsupported transport")
	}
	tran = tran.Clone()

	tcc := tran.TLSClientConfig
	if tcc == nil {
		tcc = &tls.Config{MinVersion: tls.VersionTLS12}
	} else {
		tcc = tcc.Clone()
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("failed to add ca cert: no certificates found")
	}
	tcc.RootCAs = pool
	tran.TLSClientConfig = tcc

	out := *hc
	out.Transport = tran
	return &out, nil
}
