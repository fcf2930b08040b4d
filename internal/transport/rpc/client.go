package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoReply is returned when no reply arrives within the client timeout.
var ErrNoReply = errors.New("rpc: no reply before timeout")

const defaultReplyPrefix = "rpc.replies."

// ClientConfig addresses the remote service.
type ClientConfig struct {
	// Stream is the request stream the remote service consumes.
	Stream string
	// Timeout bounds the wait for a reply.
	Timeout time.Duration
	// ReplyPrefix names the per-call reply streams.
	ReplyPrefix string
}

// Client sends requests to a remote Server and waits for the reply.
type Client struct {
	client redis.Cmdable
	cfg    ClientConfig
	newID  func() string
}

// NewClient creates a Client. A zero Timeout defaults to 5s.
func NewClient(client redis.Cmdable, cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.ReplyPrefix == "" {
		cfg.ReplyPrefix = defaultReplyPrefix
	}
	return &Client{client: client, cfg: cfg, newID: uuid.NewString}
}

// Send publishes pattern with payload and decodes the reply data into out
// (which may be nil). An error reply is returned as a domain remote error.
func (c *Client) Send(ctx context.Context, pattern string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rpc: marshal payload: %w", err)
	}

	id := c.newID()
	replyTo := c.cfg.ReplyPrefix + id
	req, err := json.Marshal(Request{ID: id, Pattern: pattern, Payload: body, ReplyTo: replyTo})
	if err != nil {
		return fmt.Errorf("rpc: marshal request: %w", err)
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: []any{messageField, string(req)},
	}).Err(); err != nil {
		return fmt.Errorf("rpc: send %s: %w", pattern, err)
	}

	reply, err := c.awaitReply(ctx, replyTo)
	// The reply stream is single use.
	_ = c.client.Del(context.WithoutCancel(ctx), replyTo).Err()
	if err != nil {
		return err
	}
	if reply.ID != id {
		return fmt.Errorf("rpc: reply id %q does not match request %q", reply.ID, id)
	}
	if reply.Error != nil {
		return reply.Error.Err()
	}
	if out == nil || len(reply.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Data, out); err != nil {
		return fmt.Errorf("rpc: decode reply: %w", err)
	}
	return nil
}

func (c *Client) awaitReply(ctx context.Context, replyTo string) (Reply, error) {
	var reply Reply
	streams, err := c.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{replyTo, "0"},
		Count:   1,
		Block:   c.cfg.Timeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return reply, ErrNoReply
	}
	if err != nil {
		return reply, fmt.Errorf("rpc: await reply: %w", err)
	}

	for _, stream := range streams {
		for _, msg := range stream.Messages {
			raw, ok := msg.Values[messageField].(string)
			if !ok {
				return reply, fmt.Errorf("rpc: reply %s has no %q field", msg.ID, messageField)
			}
			if err := json.Unmarshal([]byte(raw), &reply); err != nil {
				return reply, fmt.Errorf("rpc: decode reply: %w", err)
			}
			return reply, nil
		}
	}
	return reply, ErrNoReply
}
