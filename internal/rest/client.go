package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"telechat/internal/models"
)

// Result is the backend's generic mutation response.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	ID      int    `json:"id,omitempty"`
}

// Client is a thin wrapper over the consultation REST API. All mutation
// errors are values: callers convert them to user-visible notifications and
// never let them escape into the rendering layer.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Login obtains a bearer token for the given participant.
func (c *Client) Login(ctx context.Context, name string, role models.Role) (string, models.User, error) {
	var resp struct {
		Result
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	body := map[string]any{"name": name, "role": role}
	if err := c.do(ctx, http.MethodPost, "/v1/login", body, &resp); err != nil {
		return "", models.User{}, err
	}
	if !resp.Success {
		return "", models.User{}, fmt.Errorf("login: %s", resp.Message)
	}
	c.token = resp.Token
	return resp.Token, resp.User, nil
}

// GetChat hydrates one session with its transcript and artifacts.
func (c *Client) GetChat(ctx context.Context, sessionID int) (*models.Session, error) {
	var session models.Session
	path := fmt.Sprintf("/v1/chats/%d", sessionID)
	if err := c.do(ctx, http.MethodGet, path, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// CreateChat starts a consultation between a doctor and a patient, returning
// the new session id.
func (c *Client) CreateChat(ctx context.Context, doctorID, userID int) (int, error) {
	var resp Result
	body := map[string]int{"doctor_id": doctorID, "user_id": userID}
	if err := c.do(ctx, http.MethodPost, "/v1/chats", body, &resp); err != nil {
		return 0, err
	}
	if !resp.Success {
		return 0, fmt.Errorf("create chat: %s", resp.Message)
	}
	return resp.ID, nil
}

// EndChat marks the session ended. The caller broadcasts the chat-ended
// alert separately over the live channel.
func (c *Client) EndChat(ctx context.Context, sessionID int) (Result, error) {
	var resp Result
	path := fmt.Sprintf("/v1/chats/%d/end", sessionID)
	err := c.do(ctx, http.MethodPost, path, nil, &resp)
	return resp, err
}

func (c *Client) AddPrescription(ctx context.Context, sessionID int, p models.Prescription) (Result, error) {
	var resp Result
	path := fmt.Sprintf("/v1/chats/%d/prescription", sessionID)
	err := c.do(ctx, http.MethodPost, path, p, &resp)
	return resp, err
}

func (c *Client) UpdatePrescription(ctx context.Context, sessionID int, p models.Prescription) (Result, error) {
	var resp Result
	path := fmt.Sprintf("/v1/chats/%d/prescription", sessionID)
	err := c.do(ctx, http.MethodPatch, path, p, &resp)
	return resp, err
}

func (c *Client) AddSickLeave(ctx context.Context, sessionID int, f models.SickLeaveForm) (Result, error) {
	var resp Result
	path := fmt.Sprintf("/v1/chats/%d/sick-leave", sessionID)
	err := c.do(ctx, http.MethodPost, path, f, &resp)
	return resp, err
}

func (c *Client) UpdateSickLeave(ctx context.Context, sessionID int, f models.SickLeaveForm) (Result, error) {
	var resp Result
	path := fmt.Sprintf("/v1/chats/%d/sick-leave", sessionID)
	err := c.do(ctx, http.MethodPatch, path, f, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return models.ErrNotFound
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
