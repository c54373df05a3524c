package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/wardenhq/warden/pkg/ratelimit"
	"github.com/wardenhq/warden/pkg/types"
)

// Client wraps the Warden HTTP APIs for easy CLI usage
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for a Warden API endpoint. The same client
// type serves both the ticket API and the rate limiter API; they share
// the request plumbing and differ only in base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// ListTickets returns tickets, optionally filtered by status
func (c *Client) ListTickets(status string) ([]*types.Ticket, error) {
	url := c.baseURL + "/tickets"
	if status != "" {
		url += "?status=" + status
	}
	var tickets []*types.Ticket
	if err := c.get(url, &tickets); err != nil {
		return nil, err
	}
	return tickets, nil
}

// GetTicket fetches one ticket by ID
func (c *Client) GetTicket(id string) (*types.Ticket, error) {
	var t types.Ticket
	if err := c.get(c.baseURL+"/tickets/"+id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Acknowledge marks an open ticket as acknowledged
func (c *Client) Acknowledge(id string) (*types.Ticket, error) {
	var t types.Ticket
	if err := c.post(c.baseURL+"/tickets/"+id+"/ack", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Diagnose attaches diagnosis text to a ticket
func (c *Client) Diagnose(id, text string) (*types.Ticket, error) {
	var t types.Ticket
	body := map[string]string{"text": text}
	if err := c.post(c.baseURL+"/tickets/"+id+"/diagnosis", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SetHeld sets or clears a ticket's held flag
func (c *Client) SetHeld(id string, held bool) (*types.Ticket, error) {
	var t types.Ticket
	body := map[string]bool{"held": held}
	if err := c.post(c.baseURL+"/tickets/"+id+"/hold", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CheckLimit consumes one request slot for a key on the rate limiter.
// A denied check is not an error; inspect the result's Allowed field.
func (c *Client) CheckLimit(key string, limit int, windowMS int64) (*types.RateLimitResult, error) {
	data, err := json.Marshal(ratelimit.CheckRequest{Key: key, Limit: limit, WindowMS: windowMS})
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Post(c.baseURL+"/check", "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	// 429 carries the same body as 200
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusTooManyRequests {
		return nil, apiError(resp)
	}

	var res types.RateLimitResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &res, nil
}

// ResetCounter clears the sliding window for a key. Reports whether
// the counter existed.
func (c *Client) ResetCounter(key string) (bool, error) {
	var res struct {
		Reset bool `json:"reset"`
	}
	if err := c.post(c.baseURL+"/counters/"+key+"/reset", nil, &res); err != nil {
		return false, err
	}
	return res.Reset, nil
}

// SetLimit installs a per-key limit override on the rate limiter
func (c *Client) SetLimit(key string, limit int, windowMS int64) error {
	data, err := json.Marshal(ratelimit.Limit{Limit: limit, WindowMS: windowMS})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPut, c.baseURL+"/limits/"+key, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return nil
}

func (c *Client) get(url string, out interface{}) error {
	resp, err := c.http.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(url string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader([]byte("{}"))
	}

	resp, err := c.http.Post(url, "application/json", reader)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s", body.Error)
	}
	return fmt.Errorf("API returned %d", resp.StatusCode)
}
