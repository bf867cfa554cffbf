package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

const maxResponseBody = 1 << 20

// API is the subset of the Pterodactyl Application API used for panel
// provisioning. One value is bound to a single backing instance.
type API interface {
	CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error)
	FindUsersByUsername(ctx context.Context, username string) ([]User, error)
	FindUsersByEmail(ctx context.Context, email string) ([]User, error)
	ListUsers(ctx context.Context, page int) (*UserPage, error)
	CreateServer(ctx context.Context, req *CreateServerRequest) (*Server, error)
	DeleteServer(ctx context.Context, serverID int) error
	DeleteUser(ctx context.Context, userID int) error
}

// Options configures the shared transport of all instance clients.
type Options struct {
	// Timeout bounds every request, including reading the response.
	Timeout time.Duration
	// ReadRetries is the number of retries for idempotent GETs.
	// Mutations are never retried.
	ReadRetries int
	Logger      *zap.Logger
}

// Factory hands out clients bound to a backing instance. All clients share
// one connection pool.
type Factory struct {
	http   *retryablehttp.Client
	logger *zap.Logger
}

// NewFactory creates a client factory
func NewFactory(opts Options) *Factory {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = opts.Timeout
	rc.RetryMax = opts.ReadRetries
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.Logger = retryLogger{opts.Logger.Sugar()}
	// Hand the last response back instead of a "giving up" error so status
	// handling stays in one place.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Factory{http: rc, logger: opts.Logger}
}

// For returns a client for the instance at baseURL authenticated with an
// application API key.
func (f *Factory) For(baseURL, apiKey string) API {
	return f.client(baseURL, apiKey)
}

func (f *Factory) client(baseURL, apiKey string) *PterodactylClient {
	return &PterodactylClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    f.http,
		logger:  f.logger.With(zap.String("instance", baseURL)),
	}
}

// PterodactylClient calls the Application API of one Pterodactyl instance
type PterodactylClient struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
	logger  *zap.Logger
}

// NewPterodactylClient creates a standalone client with its own transport
func NewPterodactylClient(baseURL, apiKey string, opts Options) *PterodactylClient {
	return NewFactory(opts).client(baseURL, apiKey)
}

// CreateUser creates a user. A duplicate username or email is reported as
// ErrConflict.
func (c *PterodactylClient) CreateUser(ctx context.Context, req *CreateUserRequest) (*User, error) {
	c.logger.Info("creating user", zap.String("username", req.Username))

	status, body, err := c.do(ctx, http.MethodPost, "/api/application/users", req, false)
	if err != nil {
		return nil, err
	}

	if status != http.StatusCreated && status != http.StatusOK {
		apiErr := newAPIError(status, body)
		if apiErr.duplicate() {
			return nil, fmt.Errorf("%w: %w", ErrConflict, apiErr)
		}
		return nil, apiErr
	}

	var result userObject
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode user: %w (body: %s)", err, truncate(body))
	}
	if result.Attributes.ID == 0 {
		return nil, fmt.Errorf("decode user: missing id (body: %s)", truncate(body))
	}

	c.logger.Info("user created", zap.Int("user_id", result.Attributes.ID))
	return &result.Attributes, nil
}

// FindUsersByUsername lists users matching the username filter. The remote
// filter is a substring match; callers pick the exact match.
func (c *PterodactylClient) FindUsersByUsername(ctx context.Context, username string) ([]User, error) {
	query := url.Values{"filter[username]": {username}}
	page, err := c.listUsers(ctx, query)
	if err != nil {
		return nil, err
	}
	return page.Users, nil
}

// FindUsersByEmail lists users matching the email filter.
func (c *PterodactylClient) FindUsersByEmail(ctx context.Context, email string) ([]User, error) {
	page, err := c.listUsers(ctx, url.Values{"filter[email]": {email}})
	if err != nil {
		return nil, err
	}
	return page.Users, nil
}

// ListUsers returns one page of users, starting at page 1
func (c *PterodactylClient) ListUsers(ctx context.Context, page int) (*UserPage, error) {
	if page < 1 {
		page = 1
	}
	return c.listUsers(ctx, url.Values{"page": {strconv.Itoa(page)}})
}

func (c *PterodactylClient) listUsers(ctx context.Context, query url.Values) (*UserPage, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/api/application/users?"+query.Encode(), nil, true)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var result userList
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode user list: %w (body: %s)", err, truncate(body))
	}

	page := &UserPage{
		Users:      make([]User, 0, len(result.Data)),
		Pagination: result.Meta.Pagination,
	}
	for _, u := range result.Data {
		page.Users = append(page.Users, u.Attributes)
	}
	return page, nil
}

// CreateServer creates a server owned by req.User
func (c *PterodactylClient) CreateServer(ctx context.Context, req *CreateServerRequest) (*Server, error) {
	c.logger.Info("creating server",
		zap.String("name", req.Name),
		zap.Int("user_id", req.User),
		zap.Int("memory", req.Limits.Memory),
		zap.Int("cpu", req.Limits.CPU),
		zap.Int("disk", req.Limits.Disk))

	status, body, err := c.do(ctx, http.MethodPost, "/api/application/servers", req, false)
	if err != nil {
		return nil, err
	}
	if status != http.StatusCreated && status != http.StatusOK {
		return nil, statusError(status, body)
	}

	var result serverObject
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode server: %w (body: %s)", err, truncate(body))
	}
	if result.Attributes.ID == 0 {
		return nil, fmt.Errorf("decode server: missing id (body: %s)", truncate(body))
	}

	c.logger.Info("server created", zap.Int("server_id", result.Attributes.ID))
	return &result.Attributes, nil
}

// DeleteServer force-deletes a server. A missing server yields ErrRemoteNotFound.
func (c *PterodactylClient) DeleteServer(ctx context.Context, serverID int) error {
	c.logger.Info("deleting server", zap.Int("server_id", serverID))
	return c.delete(ctx, fmt.Sprintf("/api/application/servers/%d/force", serverID))
}

// DeleteUser deletes a user. A missing user yields ErrRemoteNotFound.
func (c *PterodactylClient) DeleteUser(ctx context.Context, userID int) error {
	c.logger.Info("deleting user", zap.Int("user_id", userID))
	return c.delete(ctx, fmt.Sprintf("/api/application/users/%d", userID))
}

func (c *PterodactylClient) delete(ctx context.Context, path string) error {
	status, body, err := c.do(ctx, http.MethodDelete, path, nil, false)
	if err != nil {
		return err
	}
	if status == http.StatusNoContent || status == http.StatusOK {
		return nil
	}
	return statusError(status, body)
}

// do sends one request. Only idempotent requests go through the retrying
// client; everything else uses the underlying http.Client directly.
func (c *PterodactylClient) do(ctx context.Context, method, path string, body interface{}, idempotent bool) (int, []byte, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	var resp *http.Response

	if idempotent {
		var raw interface{}
		if payload != nil {
			raw = payload
		}
		req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, raw)
		if err != nil {
			return 0, nil, fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req.Header, payload != nil)
		resp, err = c.http.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
		}
	} else {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(payload))
		if err != nil {
			return 0, nil, fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req.Header, payload != nil)
		resp, err = c.http.HTTPClient.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Warn("request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(respBody)))
	}

	return resp.StatusCode, respBody, nil
}

func (c *PterodactylClient) setHeaders(h http.Header, hasBody bool) {
	h.Set("Authorization", "Bearer "+c.apiKey)
	h.Set("Accept", "application/json")
	if hasBody {
		h.Set("Content-Type", "application/json")
	}
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope struct {
		Errors []APIErrorDetail `json:"errors"`
	}
	if json.Unmarshal(body, &envelope) == nil {
		apiErr.Errors = envelope.Errors
	}
	return apiErr
}

func statusError(status int, body []byte) error {
	apiErr := newAPIError(status, body)
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrRemoteNotFound, apiErr)
	}
	return apiErr
}

// IsNotFound reports whether err is a 404 from the remote.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRemoteNotFound)
}

func truncate(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}

// retryLogger adapts zap to retryablehttp.LeveledLogger. Per-request
// chatter goes to debug.
type retryLogger struct {
	l *zap.SugaredLogger
}

func (r retryLogger) Error(msg string, keysAndValues ...interface{}) {
	r.l.Errorw(msg, keysAndValues...)
}

func (r retryLogger) Info(msg string, keysAndValues ...interface{}) {
	r.l.Debugw(msg, keysAndValues...)
}

func (r retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	r.l.Debugw(msg, keysAndValues...)
}

func (r retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	r.l.Warnw(msg, keysAndValues...)
}
