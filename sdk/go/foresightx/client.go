// Package foresightx is a small client for the ForesightX HTTP API.
package foresightx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Waiting submissions pass their own deadline through the context.
const DefaultHTTPTimeout = 2 * time.Minute

// Client wraps the HTTP interactions with the ForesightX REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
}

// Message is a chat or tweet message submitted to the agent.
type Message struct {
	ID       string         `json:"id,omitempty"`
	UserID   string         `json:"user_id,omitempty"`
	UserName string         `json:"user_name,omitempty"`
	RoomID   string         `json:"room_id,omitempty"`
	Text     string         `json:"text"`
	Action   string         `json:"action,omitempty"`
	Source   string         `json:"source,omitempty"`
	Twitter  *Twitter       `json:"twitter,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Twitter marks a message as a tweet.
type Twitter struct {
	Username string `json:"username"`
	TweetID  string `json:"tweet_id,omitempty"`
}

// Result is the outcome of a processed message.
type Result struct {
	Reply   string         `json:"reply"`
	Replies []string       `json:"replies,omitempty"`
	Action  string         `json:"action"`
	Handled bool           `json:"handled"`
	Success bool           `json:"success"`
	Content map[string]any `json:"content,omitempty"`
}

// Task is the server side view of a submitted message.
type Task struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	RoomID     string  `json:"room_id"`
	Text       string  `json:"text"`
	Status     string  `json:"status"`
	Attempts   int     `json:"attempts"`
	MaxRetries int     `json:"max_retries"`
	LastError  string  `json:"last_error,omitempty"`
	ErrorCode  string  `json:"error_code,omitempty"`
	Result     *Result `json:"result,omitempty"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
}

// Done reports whether the task reached succeeded or failed.
func (t *Task) Done() bool {
	return t != nil && (t.Status == "succeeded" || t.Status == "failed")
}

// ListParams filters GET /api/v1/tasks.
type ListParams struct {
	Limit  int
	Offset int
	Status string
	RoomID string
	UserID string
	Action string
}

// Market is a prediction market created by the agent.
type Market struct {
	Slug           string `json:"slug"`
	MarketQuestion string `json:"market_question"`
	Creator        string `json:"creator"`
	MarketURL      string `json:"market_url"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("foresightx api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("foresightx api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the API at rawURL. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitMessage queues msg. With wait set the server holds the request until
// the message is processed or its wait timeout passes.
func (c *Client) SubmitMessage(ctx context.Context, msg Message, wait bool) (*Task, error) {
	if msg.Text == "" {
		return nil, errors.New("foresightx: message text is required")
	}
	endpoint := "/api/v1/messages"
	var query url.Values
	if wait {
		query = url.Values{"wait": {"true"}}
	}
	var task Task
	if err := c.post(ctx, endpoint, query, msg, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetTask fetches a task by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (*Task, error) {
	var task Task
	if err := c.get(ctx, "/api/v1/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks returns the tasks matching params, newest first.
func (c *Client) ListTasks(ctx context.Context, params ListParams) ([]Task, error) {
	query := url.Values{}
	if params.Limit > 0 {
		query.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Offset > 0 {
		query.Set("offset", strconv.Itoa(params.Offset))
	}
	for key, value := range map[string]string{
		"status": params.Status, "room": params.RoomID, "user": params.UserID, "action": params.Action,
	} {
		if value != "" {
			query.Set(key, value)
		}
	}
	var out struct {
		Tasks []Task `json:"tasks"`
	}
	if err := c.get(ctx, "/api/v1/tasks", query, &out); err != nil {
		return nil, err
	}
	return out.Tasks, nil
}

// Market looks up a prediction market by slug.
func (c *Client) Market(ctx context.Context, slug string) (*Market, error) {
	var market Market
	if err := c.get(ctx, "/api/v1/markets/"+slug, nil, &market); err != nil {
		return nil, err
	}
	return &market, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

func (c *Client) post(ctx context.Context, endpoint string, query url.Values, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, query, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	if len(query) > 0 {
		rel.RawQuery = query.Encode()
	}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if token := c.AccessToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			var wrapped struct {
				Error json.RawMessage `json:"error"`
			}
			if json.Unmarshal(data, &wrapped) == nil && len(wrapped.Error) > 0 {
				if json.Unmarshal(wrapped.Error, &apiErr) != nil {
					// gin's auth middleware answers {"error": "Unauthorized"}
					_ = json.Unmarshal(wrapped.Error, &apiErr.Message)
				}
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
