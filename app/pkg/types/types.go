package types

import (
	"context"
	"time"
)

// Message represents a chat message as seen by channels and agents.
type Message struct {
	ID          string
	ThreadID    string // thread/channel the message lives in
	ParentID    string // parent channel of the thread (forum id), if any
	Content     string
	AuthorID    string
	AuthorIsBot bool
	CreatedAt   time.Time
	JumpLink    string
}

// Embed is a rich reply panel. Only final approvals use it; everything
// else is plain conversational text.
type Embed struct {
	Title       string
	Description string
	Color       int
	Footer      string
}

// Agent consumes inbound messages and performs its own side effects.
type Agent interface {
	Process(ctx context.Context, msg Message) error
	Name() string
}

// Channel is an inbound message source (Discord forum, test harness).
type Channel interface {
	Start(ctx context.Context, handler func(Message)) error
	ID() string
}

// Transport is the conversation side-effect surface the intake agent
// drives: replies, lookups, history and cleanup inside one thread.
type Transport interface {
	Send(ctx context.Context, threadID string, content string) (Message, error)
	SendEmbed(ctx context.Context, threadID string, embed Embed) (Message, error)
	FetchMessage(ctx context.Context, threadID string, messageID string) (Message, error)
	History(ctx context.Context, threadID string, limit int, oldestFirst bool) ([]Message, error)
	DeleteMessages(ctx context.Context, threadID string, messageIDs []string) error
	Purge(ctx context.Context, threadID string, keep func(Message) bool) error
}
