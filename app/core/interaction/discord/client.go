package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"gatekeeper/app/pkg/types"
)

const defaultAPIRoot = "https://discord.com/api/v10"

// Config wires the client to one guild and its intake forum.
type Config struct {
	BotToken       string
	APIRoot        string
	GuildID        string
	ForumChannelID string
}

// Client is a minimal Discord REST client covering the intake flow's
// conversation surface. It implements types.Transport.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.APIRoot == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiMessage struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Content   string    `json:"content"`
	Timestamp string    `json:"timestamp"`
	Author    apiAuthor `json:"author"`
}

type apiAuthor struct {
	ID  string `json:"id"`
	Bot bool   `json:"bot"`
}

// Thread is an active forum thread as listed by the guild threads
// endpoint.
type Thread struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Name     string `json:"name"`
}

type activeThreadsResponse struct {
	Threads []Thread `json:"threads"`
}

type apiEmbed struct {
	Title       string          `json:"title,omitempty"`
	Description string          `json:"description,omitempty"`
	Color       int             `json:"color,omitempty"`
	Footer      *apiEmbedFooter `json:"footer,omitempty"`
}

type apiEmbedFooter struct {
	Text string `json:"text"`
}

// Send posts a plain text reply into a thread.
func (c *Client) Send(ctx context.Context, threadID string, content string) (types.Message, error) {
	payload := map[string]interface{}{"content": content}
	var out apiMessage
	if err := c.call(ctx, http.MethodPost, "/channels/"+threadID+"/messages", payload, &out); err != nil {
		return types.Message{}, err
	}
	return c.toMessage(out, threadID), nil
}

// SendEmbed posts a rich panel reply into a thread.
func (c *Client) SendEmbed(ctx context.Context, threadID string, embed types.Embed) (types.Message, error) {
	apiE := apiEmbed{
		Title:       embed.Title,
		Description: embed.Description,
		Color:       embed.Color,
	}
	if embed.Footer != "" {
		apiE.Footer = &apiEmbedFooter{Text: embed.Footer}
	}
	payload := map[string]interface{}{"embeds": []apiEmbed{apiE}}
	var out apiMessage
	if err := c.call(ctx, http.MethodPost, "/channels/"+threadID+"/messages", payload, &out); err != nil {
		return types.Message{}, err
	}
	return c.toMessage(out, threadID), nil
}

// FetchMessage retrieves one message by id. Passing the thread id as the
// message id fetches the thread's starter message.
func (c *Client) FetchMessage(ctx context.Context, threadID string, messageID string) (types.Message, error) {
	var out apiMessage
	if err := c.call(ctx, http.MethodGet, "/channels/"+threadID+"/messages/"+messageID, nil, &out); err != nil {
		return types.Message{}, err
	}
	return c.toMessage(out, threadID), nil
}

// History returns up to limit messages of a thread. Discord serves
// newest-first; callers that need conversation order ask for oldestFirst.
func (c *Client) History(ctx context.Context, threadID string, limit int, oldestFirst bool) ([]types.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))

	var out []apiMessage
	if err := c.call(ctx, http.MethodGet, "/channels/"+threadID+"/messages?"+query.Encode(), nil, &out); err != nil {
		return nil, err
	}

	messages := make([]types.Message, 0, len(out))
	for _, m := range out {
		messages = append(messages, c.toMessage(m, threadID))
	}
	if oldestFirst {
		for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
			messages[i], messages[j] = messages[j], messages[i]
		}
	}
	return messages, nil
}

// DeleteMessages removes the given messages from a thread. Batches of two
// or more use bulk-delete; messages the bulk endpoint rejects (older than
// two weeks) fall back to one-by-one deletion.
func (c *Client) DeleteMessages(ctx context.Context, threadID string, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if len(messageIDs) == 1 {
		return c.deleteOne(ctx, threadID, messageIDs[0])
	}

	payload := map[string]interface{}{"messages": messageIDs}
	if err := c.call(ctx, http.MethodPost, "/channels/"+threadID+"/messages/bulk-delete", payload, nil); err != nil {
		log.Printf("[Discord] Bulk delete failed in thread %s, falling back to single deletes: %v", threadID, err)
		for _, id := range messageIDs {
			if derr := c.deleteOne(ctx, threadID, id); derr != nil {
				return derr
			}
		}
	}
	return nil
}

// Purge deletes every message in the thread that keep rejects.
func (c *Client) Purge(ctx context.Context, threadID string, keep func(types.Message) bool) error {
	messages, err := c.History(ctx, threadID, 100, false)
	if err != nil {
		return err
	}
	for _, m := range messages {
		if keep != nil && keep(m) {
			continue
		}
		if err := c.deleteOne(ctx, threadID, m.ID); err != nil {
			return err
		}
	}
	return nil
}

// ActiveForumThreads lists the guild's active threads whose parent is the
// intake forum channel.
func (c *Client) ActiveForumThreads(ctx context.Context) ([]Thread, error) {
	var out activeThreadsResponse
	if err := c.call(ctx, http.MethodGet, "/guilds/"+c.cfg.GuildID+"/threads/active", nil, &out); err != nil {
		return nil, err
	}

	threads := make([]Thread, 0, len(out.Threads))
	for _, t := range out.Threads {
		if t.ParentID == c.cfg.ForumChannelID {
			threads = append(threads, t)
		}
	}
	return threads, nil
}

func (c *Client) deleteOne(ctx context.Context, threadID, messageID string) error {
	return c.call(ctx, http.MethodDelete, "/channels/"+threadID+"/messages/"+messageID, nil, nil)
}

func (c *Client) call(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIRoot+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+c.cfg.BotToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("discord API status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func (c *Client) toMessage(m apiMessage, threadID string) types.Message {
	created, _ := time.Parse(time.RFC3339, m.Timestamp)
	channelID := m.ChannelID
	if channelID == "" {
		channelID = threadID
	}
	return types.Message{
		ID:          m.ID,
		ThreadID:    channelID,
		ParentID:    c.cfg.ForumChannelID,
		Content:     m.Content,
		AuthorID:    m.Author.ID,
		AuthorIsBot: m.Author.Bot,
		CreatedAt:   created,
		JumpLink:    fmt.Sprintf("https://discord.com/channels/%s/%s/%s", c.cfg.GuildID, channelID, m.ID),
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
