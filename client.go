// Package chatsync is the data-synchronization core of an embeddable chat
// widget: paginated user, group and message lists fetched from a REST
// backend, and real-time message reconciliation over a websocket channel.
//
// Example:
//
//	client := chatsync.NewClient(token, chatsync.WithBaseURL("https://chat.example.com"))
//	session := chatsync.NewSession(client, chatsync.Identity{UserID: "7", Name: "Ada"},
//		chatsync.WithSocketURL("wss://chat.example.com/socket"))
//	defer session.Close()
//
//	conv, _ := session.Open(ctx, chatsync.Direct("42"))
//	conv.On(chatsync.EventMessagesChanged, func(string, any) { render(conv.Groups(time.Local)) })
//	_ = conv.Compose().SetText("hi")
//	pending, _ := conv.Send(ctx)
//	msg, _ := pending.Wait(ctx)
package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	DefaultBaseURL = "http://localhost:8080"
	DefaultTimeout = 30 * time.Second
)

//go:generate mockgen -destination=mock/backend.go -package=mock github.com/Prismer-AI/chatsync Backend

// Backend is the REST surface the widget consumes. Client implements it over
// HTTP; tests substitute mocks.
type Backend interface {
	GetUsers(ctx context.Context, q UserQuery) (*Page[User], error)
	GetGroups(ctx context.Context, q GroupQuery) (*Page[Group], error)
	GetMessages(ctx context.Context, q MessageQuery) (*Page[Message], error)
	CreateGroup(ctx context.Context, name string, memberIDs []string) error
}

// ============================================================================
// Client
// ============================================================================

type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

var _ Backend = (*Client)(nil)

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithClientLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a REST client for the chat backend.
// token is optional; when set it is sent as a bearer token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:   token,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger: zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken sets or updates the bearer token.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend request")

	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = truncate(strings.TrimSpace(string(data)), 200)
		}
		return nil, &APIError{Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: msg}
	}
	return data, nil
}

// ============================================================================
// Backend Methods
// ============================================================================

// GetUsers fetches one page of the user directory.
func (c *Client) GetUsers(ctx context.Context, q UserQuery) (*Page[User], error) {
	params := url.Values{}
	params.Set("currentPage", strconv.Itoa(q.Page))
	params.Set("totalRecords", strconv.Itoa(q.PageSize))
	params.Set("search", q.Search)
	params.Set("moduleValue", strconv.Itoa(int(q.View)))

	data, err := c.doRequest(ctx, http.MethodGet, "/api/users", nil, params)
	if err != nil {
		return nil, err
	}
	return decodePage(data, decodeUser)
}

// GetGroups fetches one page of groups.
func (c *Client) GetGroups(ctx context.Context, q GroupQuery) (*Page[Group], error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.Search != "" {
		params.Set("search", q.Search)
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/api/groups", nil, params)
	if err != nil {
		return nil, err
	}
	return decodePage(data, decodeGroup)
}

// GetMessages fetches one page of a conversation's history, newest first.
func (c *Client) GetMessages(ctx context.Context, q MessageQuery) (*Page[Message], error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("limit", strconv.Itoa(q.Limit))
	if q.GroupID != "" {
		params.Set("groupId", q.GroupID)
	} else {
		params.Set("fromUserId", q.FromUserID)
		params.Set("toUserId", q.ToUserID)
	}
	params.Set("search", q.Search)

	data, err := c.doRequest(ctx, http.MethodGet, "/api/messages", nil, params)
	if err != nil {
		return nil, err
	}
	return decodePage(data, decodeMessage)
}

// CreateGroup creates a group with the given members.
func (c *Client) CreateGroup(ctx context.Context, name string, memberIDs []string) error {
	members := make([]any, 0, len(memberIDs))
	for _, id := range memberIDs {
		members = append(members, wireID(id))
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/api/groups", map[string]any{
		"name":       name,
		"groupUsers": members,
	}, nil)
	if err != nil {
		return err
	}
	if status := gjson.GetBytes(data, "status"); status.Exists() && status.String() != "success" {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = "failed to create group"
		}
		return &APIError{Code: status.String(), Message: msg}
	}
	return nil
}

// wireID sends numeric ids as JSON numbers, which is what the backend stores.
func wireID(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
