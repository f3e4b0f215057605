// Package agentapi is the client for the downstream reply service that turns a
// batch of user messages into one agent reply.
package agentapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
)

// DefaultTimeout bounds every request to the reply service.
const DefaultTimeout = 10 * time.Second

// Config holds the reply service endpoint and credentials.
type Config struct {
	BaseURL string
	APIKey  string
	AgentID int64
	Timeout time.Duration
}

// Agent describes the bot persona served by the reply service.
type Agent struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type sendMessagesRequest struct {
	Messages []string `json:"messages"`
}

type sendMessagesResponse struct {
	Reply string `json:"reply"`
}

type personaResponse struct {
	Persona string `json:"persona"`
}

type agentResponse struct {
	Agent Agent `json:"agent"`
}

// Client talks to the reply service over JSON/HTTP.
type Client struct {
	http    *resty.Client
	agentID string
}

// New creates a Resty-backed client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("x-api-key", cfg.APIKey).
			SetTimeout(timeout),
		agentID: strconv.FormatInt(cfg.AgentID, 10),
	}
}

// SendBatch posts an ordered batch for one conversation and returns the reply.
// An empty string means the service chose not to reply.
func (c *Client) SendBatch(ctx context.Context, conversationID int64, messages []string) (string, error) {
	var out sendMessagesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"agentId": c.agentID,
			"chatId":  strconv.FormatInt(conversationID, 10),
		}).
		SetBody(sendMessagesRequest{Messages: messages}).
		SetResult(&out).
		Post("/chat/{agentId}/{chatId}")
	if err := check("send messages", resp, err); err != nil {
		return "", err
	}
	return out.Reply, nil
}

// FetchPersona returns the service's evaluation report for a user.
func (c *Client) FetchPersona(ctx context.Context, userID int64) (string, error) {
	var out personaResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"agentId": c.agentID,
			"userId":  strconv.FormatInt(userID, 10),
		}).
		SetResult(&out).
		Get("/persona/{agentId}/{userId}")
	if err := check("get user persona", resp, err); err != nil {
		return "", err
	}
	return out.Persona, nil
}

// AgentInfo returns the configured agent's name and description.
func (c *Client) AgentInfo(ctx context.Context) (*Agent, error) {
	var out agentResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("agentId", c.agentID).
		SetResult(&out).
		Get("/agent/{agentId}")
	if err := check("get agent info", resp, err); err != nil {
		return nil, err
	}
	return &out.Agent, nil
}

func check(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &ServiceError{Op: op, Err: err}
	}
	if resp.IsError() {
		return &ServiceError{
			Op:         op,
			StatusCode: resp.StatusCode(),
			Status:     http.StatusText(resp.StatusCode()),
		}
	}
	return nil
}

// ServiceError is a failed exchange with the reply service. StatusCode is zero
// when no response was received (timeout, refused connection).
type ServiceError struct {
	Op         string
	StatusCode int
	Status     string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: server responded with %d - %s", e.Op, e.StatusCode, e.Status)
	}
	return fmt.Sprintf("%s: no response received from server: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }
