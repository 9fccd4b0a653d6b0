package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Client is an HTTP client wrapper for the Telegram Bot API.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// httpDo is a package-level variable for testability.
var httpDo = func(client *http.Client, req *http.Request) (*http.Response, error) {
	return client.Do(req)
}

// NewClient creates a new Telegram Bot API client against the public endpoint.
func NewClient(token string) *Client {
	return NewClientWithBase(DefaultBaseURL, token, nil)
}

// NewClientWithBase creates a client for a self-hosted Bot API server.
// A nil httpClient gets a default one whose timeout leaves room for long polls.
func NewClientWithBase(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/") + "/bot" + token + "/",
		httpClient: httpClient,
	}
}

// doPost sends a POST request with a JSON body to the given Telegram API method.
// Non-200 statuses are returned with their body so the caller can decode the
// Bot API error envelope.
func (c *Client) doPost(ctx context.Context, method string, body any) ([]byte, int, error) {
	slog.Debug("telegram API POST", "component", "telegram", "operation", method)

	data, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: marshal: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+method, bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: new request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(method, req)
}

// doGet sends a GET request with query parameters to the given Telegram API method.
func (c *Client) doGet(ctx context.Context, method string, params url.Values) ([]byte, int, error) {
	slog.Debug("telegram API GET", "component", "telegram", "operation", method)

	u := c.baseURL + method
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: new request: %w", method, err)
	}

	return c.do(method, req)
}

func (c *Client) do(method string, req *http.Request) ([]byte, int, error) {
	resp, err := httpDo(c.httpClient, req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%s: read body: %w", method, err)
	}
	return respBody, resp.StatusCode, nil
}

// decode unwraps the Bot API envelope. Any ok=false answer, or a non-200
// status without a parseable envelope, becomes an *APIError.
func decode[T any](method string, data []byte, status int) (T, error) {
	var zero T
	var resp apiResponse[T]
	if err := json.Unmarshal(data, &resp); err != nil {
		if status != http.StatusOK {
			return zero, &APIError{Method: method, Code: status, Description: strings.TrimSpace(string(data))}
		}
		return zero, fmt.Errorf("%s: unmarshal: %w", method, err)
	}
	if !resp.Ok {
		code := resp.ErrorCode
		if code == 0 {
			code = status
		}
		apiErr := &APIError{Method: method, Code: code, Description: resp.Description}
		if resp.Parameters != nil {
			apiErr.RetryAfter = time.Duration(resp.Parameters.RetryAfter) * time.Second
		}
		return zero, apiErr
	}
	return resp.Result, nil
}

// GetMe returns the bot's own user record. It doubles as a credential check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	data, status, err := c.doGet(ctx, "getMe", nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: get me: %w", err)
	}
	me, err := decode[User]("getMe", data, status)
	if err != nil {
		return nil, fmt.Errorf("telegram: get me: %w", err)
	}
	return &me, nil
}

// SetMyCommands publishes the command menu for one scope and language.
func (c *Client) SetMyCommands(ctx context.Context, commands []BotCommand, scope BotCommandScope, languageCode string) error {
	body := setMyCommandsRequest{
		Commands:     commands,
		LanguageCode: languageCode,
	}
	if scope.Type != "" {
		body.Scope = &scope
	}
	data, status, err := c.doPost(ctx, "setMyCommands", body)
	if err != nil {
		return fmt.Errorf("telegram: set my commands: %w", err)
	}
	if _, err := decode[bool]("setMyCommands", data, status); err != nil {
		return fmt.Errorf("telegram: set my commands: %w", err)
	}
	slog.Debug("command menu published", "component", "telegram", "operation", "set_my_commands",
		"scope", scope.Type, "language", languageCode, "count", len(commands))
	return nil
}
