//go:build functional

// Package functional provides functional tests for the clothes REST API and change feed.
package functional

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/clothes-api/internal/config"
	"github.com/vyrodovalexey/clothes-api/internal/handler"
	"github.com/vyrodovalexey/clothes-api/internal/model"
	"github.com/vyrodovalexey/clothes-api/internal/pagination"
	"github.com/vyrodovalexey/clothes-api/internal/server"
	"github.com/vyrodovalexey/clothes-api/internal/store"
)

// Environment variable names for test configuration.
const (
	EnvTestServerHost    = "TEST_SERVER_HOST"
	EnvTestTimeout       = "TEST_TIMEOUT"
	EnvTestMetricsEnable = "TEST_METRICS_ENABLED"
)

// Default test configuration values.
const (
	DefaultTestHost         = "127.0.0.1"
	DefaultTestTimeout      = 30 * time.Second
	DefaultRequestTimeout   = 5 * time.Second
	DefaultWebSocketTimeout = 10 * time.Second
	DefaultShutdownTimeout  = 5 * time.Second
	DefaultMetricsEnabled   = false
)

// TestOrigin is an origin the test server accepts.
const TestOrigin = "http://localhost:4200"

// TestConfig holds test configuration loaded from environment.
type TestConfig struct {
	Host           string
	Timeout        time.Duration
	MetricsEnabled bool
}

// LoadTestConfig loads test configuration from environment variables.
func LoadTestConfig() *TestConfig {
	cfg := &TestConfig{
		Host:           DefaultTestHost,
		Timeout:        DefaultTestTimeout,
		MetricsEnabled: DefaultMetricsEnabled,
	}

	if host := os.Getenv(EnvTestServerHost); host != "" {
		cfg.Host = host
	}

	if timeoutStr := os.Getenv(EnvTestTimeout); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = timeout
		}
	}

	if metricsStr := os.Getenv(EnvTestMetricsEnable); metricsStr != "" {
		if enabled, err := strconv.ParseBool(metricsStr); err == nil {
			cfg.MetricsEnabled = enabled
		}
	}

	return cfg
}

// TestServer wraps a server backed by a clothes document in a temp dir.
type TestServer struct {
	Server   *server.Server
	Store    *store.RecordStore
	Feed     *handler.ChangeFeed
	Path     string
	BaseURL  string
	WSURL    string
	listener net.Listener
	timeout  time.Duration
	t        *testing.T
	mu       sync.Mutex
	started  bool
}

// NewTestServer creates a server over a fresh document seeded with items.
func NewTestServer(t *testing.T, items ...model.Record) *TestServer {
	t.Helper()

	path := filepath.Join(t.TempDir(), "db.json")
	WriteDocument(t, path, model.Document{Items: items})

	return NewTestServerWithPath(t, path)
}

// NewTestServerWithPath creates a server over an existing document file.
func NewTestServerWithPath(t *testing.T, path string) *TestServer {
	t.Helper()

	testCfg := LoadTestConfig()

	listener, err := net.Listen("tcp", net.JoinHostPort(testCfg.Host, "0"))
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	port := listener.Addr().(*net.TCPAddr).Port

	cfg := &config.Config{
		Server:  config.ServerConfig{Port: port, ShutdownTimeout: DefaultShutdownTimeout},
		Log:     config.LogConfig{Level: "error"},
		Metrics: config.MetricsConfig{Enabled: testCfg.MetricsEnabled},
		Store:   config.StoreConfig{Backend: config.BackendFile, Path: path},
		CORS: config.CORSConfig{
			AllowedOrigins: config.DefaultAllowedOrigins,
			MaxAge:         config.DefaultCORSMaxAge,
		},
	}

	logger := zap.NewNop()
	feed := handler.NewChangeFeed(logger, cfg.CORS.AllowedOrigins)
	recordStore := store.NewRecordStore(store.NewFileDocument(path),
		store.WithNotifier(feed),
		store.WithLogger(logger),
	)

	return &TestServer{
		Server:   server.New(cfg, logger, recordStore, feed),
		Store:    recordStore,
		Feed:     feed,
		Path:     path,
		BaseURL:  fmt.Sprintf("http://%s:%d", testCfg.Host, port),
		WSURL:    fmt.Sprintf("ws://%s:%d%s", testCfg.Host, port, handler.FeedPath),
		listener: listener,
		timeout:  testCfg.Timeout,
		t:        t,
	}
}

// Start starts the test server and registers its shutdown as cleanup.
func (ts *TestServer) Start() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.started {
		return
	}

	go func() {
		if err := ts.Server.Serve(ts.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ts.t.Logf("Server error: %v", err)
		}
	}()

	ts.waitForReady()
	ts.started = true
	ts.t.Cleanup(ts.Stop)
}

// waitForReady waits for the server to be ready to accept connections.
func (ts *TestServer) waitForReady() {
	ctx, cancel := context.WithTimeout(context.Background(), ts.timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ts.t.Fatalf("Server did not become ready within timeout")
		case <-ticker.C:
			resp, err := http.Get(ts.BaseURL + handler.HealthPath)
			if err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return
				}
			}
		}
	}
}

// Stop stops the test server.
func (ts *TestServer) Stop() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if !ts.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()

	if err := ts.Server.Shutdown(ctx); err != nil {
		ts.t.Logf("Server shutdown error: %v", err)
	}

	ts.started = false
}

// ReadDocument reads the clothes document back from disk.
func (ts *TestServer) ReadDocument() model.Document {
	ts.t.Helper()

	data, err := os.ReadFile(ts.Path)
	if err != nil {
		ts.t.Fatalf("Failed to read document: %v", err)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		ts.t.Fatalf("Failed to parse document: %v", err)
	}
	return doc
}

// WriteDocument writes doc to path as JSON.
func WriteDocument(t *testing.T, path string, doc model.Document) {
	t.Helper()

	if doc.Items == nil {
		doc.Items = []model.Record{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Failed to marshal document: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
}

// SeedItems builds n records with ids 1..n.
func SeedItems(n int) []model.Record {
	items := make([]model.Record, 0, n)
	for i := 1; i <= n; i++ {
		items = append(items, model.Record{
			ID:     int64(i),
			Image:  fmt.Sprintf("/img/%d.png", i),
			Name:   fmt.Sprintf("Item %d", i),
			Price:  float64(i) * 10,
			Rating: float64(i%5) + 0.5,
		})
	}
	return items
}

// HTTPClient provides a configured HTTP client for tests.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

// NewHTTPClient creates a new HTTP client for testing.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: DefaultRequestTimeout,
		},
		baseURL: baseURL,
	}
}

// Request represents an HTTP request configuration.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
}

// Response represents an HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Do executes an HTTP request and returns the response.
func (c *HTTPClient) Do(ctx context.Context, req Request) (*Response, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		switch v := req.Body.(type) {
		case string:
			bodyReader = bytes.NewBufferString(v)
		case []byte:
			bodyReader = bytes.NewBuffer(v)
		default:
			jsonBody, err := json.Marshal(req.Body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewBuffer(jsonBody)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, path string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Headers: headers})
}

// Post performs a POST request.
func (c *HTTPClient) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body})
}

// Put performs a PUT request.
func (c *HTTPClient) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body})
}

// Delete performs a DELETE request.
func (c *HTTPClient) Delete(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path})
}

// ClothingRequest is a create or replace body.
type ClothingRequest struct {
	Image  string  `json:"image"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Rating float64 `json:"rating"`
}

// RecordPath returns the item path for id.
func RecordPath(id int64) string {
	return handler.CollectionPath + "/" + strconv.FormatInt(id, 10)
}

// ParseJSON decodes body into T, failing the test on error.
func ParseJSON[T any](t *testing.T, body []byte) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		t.Fatalf("Failed to parse response %q: %v", string(body), err)
	}
	return v
}

// ParsePage decodes a list response.
func ParsePage(t *testing.T, body []byte) pagination.Page[model.Record] {
	t.Helper()
	return ParseJSON[pagination.Page[model.Record]](t, body)
}

// ParseRecord decodes a single record response.
func ParseRecord(t *testing.T, body []byte) model.Record {
	t.Helper()
	return ParseJSON[model.Record](t, body)
}

// ParseError decodes an error response.
func ParseError(t *testing.T, body []byte) model.ErrorResponse {
	t.Helper()
	return ParseJSON[model.ErrorResponse](t, body)
}

// MustDo wraps a client call and fails the test on transport errors:
// MustDo(t)(client.Get(ctx, path, nil)).
func MustDo(t *testing.T) func(*Response, error) *Response {
	t.Helper()
	return func(resp *Response, err error) *Response {
		t.Helper()
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		return resp
	}
}

// writeRaw overwrites the document with arbitrary bytes.
func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

// AssertStatusCode asserts that the response has the expected status code.
func AssertStatusCode(t *testing.T, resp *Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d. Body: %s", expected, resp.StatusCode, string(resp.Body))
	}
}

// AssertHeader asserts that the response has the expected header value.
func AssertHeader(t *testing.T, resp *Response, key, expected string) {
	t.Helper()
	actual := resp.Headers.Get(key)
	if actual != expected {
		t.Errorf("Expected header %s to be %q, got %q", key, expected, actual)
	}
}

// LogTestStart logs the start of a test.
func LogTestStart(t *testing.T, testID, testName string) {
	t.Helper()
	t.Logf("Starting test %s: %s", testID, testName)
}

// LogTestEnd logs the end of a test.
func LogTestEnd(t *testing.T, testID string) {
	t.Helper()
	t.Logf("Completed test %s", testID)
}
