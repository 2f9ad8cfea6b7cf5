package espocrm

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const tokenTTL = time.Hour

// ApiClient performs authenticated calls against the EspoCRM REST API.
// The engine resolves the active Config and passes it to every call.
type ApiClient interface {
	Authenticate(ctx context.Context, config *Config) error
	Request(ctx context.Context, config *Config, method, endpoint string, body interface{}) (map[string]interface{}, error)
}

// RestApiClient caches the access token in memory with a fixed one hour TTL.
// The cache is process-local and guarded by a mutex so the client can be
// shared between the HTTP server and the dispatch worker.
type RestApiClient struct {
	http   *resty.Client
	logger *zap.Logger

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
}

func NewApiClient(logger *zap.Logger) ApiClient {
	return &RestApiClient{
		http:   resty.New().SetTimeout(30 * time.Second),
		logger: logger,
	}
}

// Authenticate is a no-op while a cached token is still valid. Otherwise it
// posts the credentials to the accessToken endpoint and caches the result.
func (c *RestApiClient) Authenticate(ctx context.Context, config *Config) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiresAt) {
		return nil
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{
			"username": config.Username,
			"apiKey":   config.APIKey,
		}).
		Post(config.APIEndpoint("accessToken"))
	if err != nil {
		c.logger.Error("EspoCRM authentication transport failure", zap.Error(err))
		return &AuthError{Message: err.Error()}
	}

	var data map[string]interface{}
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return &AuthError{Message: "invalid token response"}
	}

	if resp.IsError() {
		message := "unknown error"
		if m, ok := data["message"].(string); ok && m != "" {
			message = m
		}
		c.logger.Error("EspoCRM authentication rejected",
			zap.Int("status", resp.StatusCode()),
			zap.String("message", message))
		return &AuthError{Message: message}
	}

	token, ok := data["token"].(string)
	if !ok || token == "" {
		return &AuthError{Message: "token missing from response"}
	}

	c.accessToken = token
	c.tokenExpiresAt = time.Now().Add(tokenTTL)
	return nil
}

// Request authenticates (refreshing an expired token transparently), issues
// the call with a Bearer header and returns the decoded JSON body.
func (c *RestApiClient) Request(ctx context.Context, config *Config, method, endpoint string, body interface{}) (map[string]interface{}, error) {
	if err := c.Authenticate(ctx, config); err != nil {
		return nil, err
	}

	c.mu.Lock()
	token := c.accessToken
	c.mu.Unlock()

	req := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetHeader("Content-Type", "application/json")
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, config.APIEndpoint(endpoint))
	if err != nil {
		return nil, &RequestError{Method: method, Endpoint: endpoint, Err: err}
	}

	if resp.IsError() {
		return nil, &RequestError{Method: method, Endpoint: endpoint, Status: resp.StatusCode()}
	}

	var data map[string]interface{}
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &data); err != nil {
			return nil, &RequestError{Method: method, Endpoint: endpoint, Err: err}
		}
	}

	return data, nil
}
