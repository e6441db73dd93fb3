package discord

import (
	"context"
	"log"
	"time"

	"gatekeeper/app/pkg/types"
)

// Channel polls the intake forum's active threads and delivers new user
// messages to the gateway handler. It implements types.Channel.
type Channel struct {
	client       *Client
	pollInterval time.Duration

	// lastID tracks the newest delivered message id per thread so a poll
	// cycle only surfaces messages it has not seen.
	lastID map[string]string
}

func NewChannel(client *Client, pollInterval time.Duration) *Channel {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Channel{
		client:       client,
		pollInterval: pollInterval,
		lastID:       map[string]string{},
	}
}

func (c *Channel) ID() string {
	return "discord-forum"
}

// Start blocks, polling until the context is cancelled. Poll errors are
// logged and retried on the next tick.
func (c *Channel) Start(ctx context.Context, handler func(types.Message)) error {
	log.Printf("[Discord] Forum polling started (interval %s)", c.pollInterval)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Discord] Forum polling stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := c.pollOnce(ctx, handler); err != nil {
				log.Printf("[Discord] Poll cycle failed: %v", err)
			}
		}
	}
}

// newerID compares snowflake ids, which only order lexicographically when
// equal length.
func newerID(a, b string) bool {
	if len(a) != len(b) {
		return len(a) > len(b)
	}
	return a > b
}

func (c *Channel) pollOnce(ctx context.Context, handler func(types.Message)) error {
	threads, err := c.client.ActiveForumThreads(ctx)
	if err != nil {
		return err
	}

	for _, thread := range threads {
		messages, err := c.client.History(ctx, thread.ID, 50, true)
		if err != nil {
			log.Printf("[Discord] Failed to read thread %s: %v", thread.ID, err)
			continue
		}

		last, seen := c.lastID[thread.ID]
		for _, msg := range messages {
			if seen && !newerID(msg.ID, last) {
				continue
			}
			c.lastID[thread.ID] = msg.ID
			if msg.AuthorIsBot {
				continue
			}
			handler(msg)
		}
	}
	return nil
}
