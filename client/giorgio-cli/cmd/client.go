package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const apiPrefix = "/api/v1/giorgio"

// Client 调用 Giorgio 的 REST 接口。
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient 创建访问 baseURL 的客户端，token 为空时不发送认证头。
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 3 * time.Minute},
	}
}

type ChatReply struct {
	Reply    string `json:"reply"`
	ThreadID string `json:"threadId"`
}

type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type Conversation struct {
	ThreadID     string    `json:"threadId"`
	Description  string    `json:"description"`
	MessageCount int       `json:"messageCount"`
	LastUpdated  time.Time `json:"lastUpdated"`
	Messages     []Message `json:"messages"`
}

type Outcome struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Summary struct {
	Summary       string         `json:"summary"`
	TotalMemories int            `json:"totalMemories"`
	Categories    map[string]int `json:"categories"`
}

type ScoredMemory struct {
	Content    string  `json:"content"`
	Category   string  `json:"category"`
	Importance int     `json:"importance"`
	Score      float64 `json:"score"`
}

type SearchResult struct {
	Memories []ScoredMemory `json:"memories"`
}

// APIError 是服务端返回的非 2xx 响应。
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		msg := e.Error
		if msg == "" {
			msg = e.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) Chat(ctx context.Context, message, threadID string) (*ChatReply, error) {
	var out ChatReply
	err := c.do(ctx, http.MethodPost, apiPrefix+"/chat", map[string]string{"message": message, "threadId": threadID}, &out)
	return &out, err
}

func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var out []Conversation
	err := c.do(ctx, http.MethodGet, apiPrefix+"/conversations", nil, &out)
	return out, err
}

func (c *Client) Conversation(ctx context.Context, threadID string) (*Conversation, error) {
	var out Conversation
	err := c.do(ctx, http.MethodGet, apiPrefix+"/conversations/"+url.PathEscape(threadID), nil, &out)
	return &out, err
}

func (c *Client) DeleteConversation(ctx context.Context, threadID string) (*Outcome, error) {
	var out Outcome
	err := c.do(ctx, http.MethodDelete, apiPrefix+"/conversations/"+url.PathEscape(threadID), nil, &out)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusNotFound {
		return &Outcome{Success: false, Message: apiErr.Message}, nil
	}
	return &out, err
}

func (c *Client) Summary(ctx context.Context) (*Summary, error) {
	var out Summary
	err := c.do(ctx, http.MethodGet, apiPrefix+"/memories/summary", nil, &out)
	return &out, err
}

func (c *Client) SearchMemories(ctx context.Context, query string, limit int) (*SearchResult, error) {
	var out SearchResult
	err := c.do(ctx, http.MethodPost, apiPrefix+"/memories/search", map[string]interface{}{"query": query, "limit": limit}, &out)
	return &out, err
}

// Subscribe 打开事件订阅的 WebSocket 连接。
func (c *Client) Subscribe(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/ws/subscribe"
	u.RawQuery = url.Values{"token": {c.token}}.Encode()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	return conn, err
}
