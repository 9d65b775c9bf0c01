// Package api implements the HTTP polling client for the broadcast server.
// Polling is the eventually-consistent backstop behind the push channel:
// it fetches the authoritative "current session" snapshot and the quiz list.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/visiolive/spectator/internal/models"
)

const defaultTimeout = 10 * time.Second

// Client calls the broadcast server's session and quiz endpoints.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates an API client for the given server base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// CurrentSession fetches the current live session snapshot.
// Returns (nil, nil) when no session is live: the server signals that with
// a 404 or an empty object, both of which are normal, not errors.
func (c *Client) CurrentSession(ctx context.Context) (*models.Session, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/sessions/current", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("current session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("current session: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("current session: %w", err)
	}
	if len(body) == 0 || string(body) == "null" || string(body) == "{}" {
		return nil, nil
	}

	var session models.Session
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("current session: decode: %w", err)
	}
	if session.ID == "" {
		return nil, nil
	}
	return &session, nil
}

// SessionQuizzes fetches the ordered quiz list for a session. The caller
// treats the last element as the current quiz.
func (c *Client) SessionQuizzes(ctx context.Context, sessionID string) ([]models.Quiz, error) {
	url := fmt.Sprintf("%s/api/sessions/%s/quizzes", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session quizzes: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session quizzes: unexpected status %d", resp.StatusCode)
	}

	var quizzes []models.Quiz
	if err := json.NewDecoder(resp.Body).Decode(&quizzes); err != nil {
		return nil, fmt.Errorf("session quizzes: decode: %w", err)
	}
	return quizzes, nil
}
