package main

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	json "github.com/json-iterator/go"
)

// APIError is the server's error envelope plus the HTTP status
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Field      string `json:"field"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("[%d] %s", e.StatusCode, e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	return msg
}

// parseError turns a non-2xx response into an *APIError
func parseError(resp *resty.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode()}
	if err := json.Unmarshal(resp.Body(), apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = "unknown_error"
		apiErr.Message = string(resp.Body())
	}
	return apiErr
}

// APIClient is a thin resty wrapper over /api/v1
type APIClient struct {
	http *resty.Client
}

func newAPIClient(baseURL, token string) *APIClient {
	c := resty.New().
		SetBaseURL(baseURL+"/api/v1").
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "marcheluxe-cli/0.1.0").
		SetHeader("Accept", "application/json")
	if token != "" {
		c.SetAuthToken(token)
	}
	return &APIClient{http: c}
}

func (c *APIClient) do(method, path string, body, result interface{}, query map[string]string) error {
	req := c.http.R().SetQueryParams(query)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if resp.IsError() {
		return parseError(resp)
	}
	if result != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

type profile struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Username  *string `json:"username"`
	FullName  string  `json:"full_name"`
	City      string  `json:"city"`
	CreatedAt string  `json:"created_at"`
}

type authResponse struct {
	Token     string   `json:"token"`
	User      *profile `json:"user"`
	ExpiresAt string   `json:"expires_at"`
}

type message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"created_at"`
}

type conversation struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Product   *struct {
		Title string `json:"title"`
		Brand string `json:"brand"`
		Price int64  `json:"price"`
	} `json:"product"`
	OtherParticipant struct {
		ID       string `json:"id"`
		Email    string `json:"email"`
		FullName string `json:"full_name"`
	} `json:"other_participant"`
	LastMessage *message  `json:"last_message"`
	UnreadCount int64     `json:"unread_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *APIClient) SignIn(email, password string) (*authResponse, error) {
	var out authResponse
	err := c.do(resty.MethodPost, "/auth/signin", map[string]string{"email": email, "password": password}, &out, nil)
	return &out, err
}

func (c *APIClient) SignOut() error {
	return c.do(resty.MethodPost, "/auth/signout", nil, nil, nil)
}

func (c *APIClient) Me() (*profile, error) {
	var out profile
	err := c.do(resty.MethodGet, "/profiles/me", nil, &out, nil)
	return &out, err
}

func (c *APIClient) SearchProfiles(query string) ([]profile, error) {
	var out struct {
		Profiles []profile `json:"profiles"`
	}
	err := c.do(resty.MethodGet, "/profiles/search", nil, &out, map[string]string{"q": query})
	return out.Profiles, err
}

func (c *APIClient) Conversations() ([]conversation, error) {
	var out struct {
		Conversations []conversation `json:"conversations"`
	}
	err := c.do(resty.MethodGet, "/conversations", nil, &out, nil)
	return out.Conversations, err
}

func (c *APIClient) Messages(conversationID string) ([]message, error) {
	var out struct {
		Messages []message `json:"messages"`
	}
	err := c.do(resty.MethodGet, "/conversations/"+conversationID+"/messages", nil, &out, nil)
	return out.Messages, err
}

func (c *APIClient) SendMessage(conversationID, content string) (*message, error) {
	var out message
	err := c.do(resty.MethodPost, "/conversations/"+conversationID+"/messages", map[string]string{"content": content}, &out, nil)
	return &out, err
}

func (c *APIClient) UnreadCount() (int64, error) {
	var out struct {
		Count int64 `json:"count"`
	}
	err := c.do(resty.MethodGet, "/messages/unread-count", nil, &out, nil)
	return out.Count, err
}
