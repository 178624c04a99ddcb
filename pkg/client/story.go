package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/oklog/ulid/v2"
)

// StoryClient provides a client interface for the story generation service.
type StoryClient interface {
	Generate(ctx context.Context, req StoryRequest) (*StoryResponse, error)
	Continue(ctx context.Context, archiveID, priorNarrative, direction string) (*StoryResponse, error)
	CheckHealth(ctx context.Context, service string) (*HealthStatus, error)
	Close() error
}

// NATSStoryClient implements StoryClient over a NATS work queue. Requests
// carry their reply subject in the payload; the client subscribes to it
// before publishing.
type NATSStoryClient struct {
	conn     *nats.Conn
	subject  string
	clientID string
	timeout  time.Duration
}

// NewNATSClient connects to NATS and returns a story client publishing to
// subject (the service's work queue subject).
func NewNATSClient(natsURL, subject, clientID string) (StoryClient, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if clientID == "" {
		clientID = "story-client"
	}

	return &NATSStoryClient{
		conn:     conn,
		subject:  subject,
		clientID: clientID,
		timeout:  90 * time.Second,
	}, nil
}

// Generate submits a story request and waits for the aggregated result.
func (c *NATSStoryClient) Generate(ctx context.Context, req StoryRequest) (*StoryResponse, error) {
	if req.ReqID == "" {
		req.ReqID = ulid.Make().String()
	}
	req.ReplyTo = fmt.Sprintf("story.generate.reply.%s.%s", c.clientID, req.ReqID)
	return c.sendRequest(ctx, req)
}

// Continue submits a continuation request for an existing archived story.
func (c *NATSStoryClient) Continue(ctx context.Context, archiveID, priorNarrative, direction string) (*StoryResponse, error) {
	return c.Generate(ctx, StoryRequest{
		Direction:      direction,
		Continuation:   true,
		PriorNarrative: priorNarrative,
		ArchiveID:      archiveID,
	})
}

func (c *NATSStoryClient) sendRequest(ctx context.Context, req StoryRequest) (*StoryResponse, error) {
	slog.Debug("Sending story request",
		"subject", c.subject,
		"req_id", req.ReqID,
		"reply_subject", req.ReplyTo)

	requestBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Subscribe to the reply subject before publishing so the response
	// cannot race the subscription.
	replyChan := make(chan *nats.Msg, 1)
	sub, err := c.conn.Subscribe(req.ReplyTo, func(msg *nats.Msg) {
		replyChan <- msg
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to reply: %w", err)
	}
	defer sub.Unsubscribe()

	if err := c.conn.Publish(c.subject, requestBytes); err != nil {
		return nil, fmt.Errorf("failed to publish request: %w", err)
	}

	select {
	case msg := <-replyChan:
		var response StoryResponse
		if err := json.Unmarshal(msg.Data, &response); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		return &response, nil

	case <-time.After(c.timeout):
		return nil, fmt.Errorf("request timeout after %v", c.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CheckHealth probes a service's health subject and returns its status.
func (c *NATSStoryClient) CheckHealth(ctx context.Context, service string) (*HealthStatus, error) {
	healthTopic := fmt.Sprintf("storybot.%s.health", service)

	msg, err := c.conn.RequestWithContext(ctx, healthTopic, nil)
	if err != nil {
		return nil, fmt.Errorf("health check failed: %w", err)
	}

	var health HealthStatus
	if err := json.Unmarshal(msg.Data, &health); err != nil {
		return nil, fmt.Errorf("failed to parse health response: %w", err)
	}
	return &health, nil
}

// Close closes the NATS connection.
func (c *NATSStoryClient) Close() error {
	if c.conn != nil {
		c.conn.Close()
	}
	return nil
}

// SetTimeout configures the request timeout.
func (c *NATSStoryClient) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}
