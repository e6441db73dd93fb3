package notion

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const defaultAPIRoot = "https://api.notion.com"

// Config wires the client to one workspace database and names the
// properties the intake flow writes.
type Config struct {
	Token            string
	APIRoot          string
	DatabaseID       string
	ProjectProperty  string
	DeadlineProperty string
	ThreadProperty   string
	NotionVersion    string
}

// Client talks to the Notion REST API for the single intake database.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.APIRoot == "" {
		cfg.APIRoot = defaultAPIRoot
	}
	if cfg.NotionVersion == "" {
		cfg.NotionVersion = "2022-06-28"
	}
	if cfg.ProjectProperty == "" {
		cfg.ProjectProperty = "Proyecto"
	}
	if cfg.DeadlineProperty == "" {
		cfg.DeadlineProperty = "Deadline"
	}
	if cfg.ThreadProperty == "" {
		cfg.ThreadProperty = "Discord Thread"
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateRequest is one task record to be created.
type CreateRequest struct {
	Title    string
	Project  string
	Deadline string
	Content  string
	BackLink string
}

// CreateRecord creates one page in the intake database and returns its URL.
// Optional fields (project, deadline, back-link, body) are omitted from the
// payload when empty.
func (c *Client) CreateRecord(ctx context.Context, req CreateRequest) (string, error) {
	if strings.TrimSpace(req.Title) == "" {
		return "", fmt.Errorf("task title is required")
	}

	payload, _ := sjson.Set("", "parent.database_id", c.cfg.DatabaseID)
	payload, _ = sjson.Set(payload, "properties.Name.title.0.text.content", req.Title)
	if req.Project != "" {
		payload, _ = sjson.Set(payload, "properties."+escapeKey(c.cfg.ProjectProperty)+".select.name", req.Project)
	}
	if req.Deadline != "" {
		payload, _ = sjson.Set(payload, "properties."+escapeKey(c.cfg.DeadlineProperty)+".date.start", req.Deadline)
	}
	if req.BackLink != "" {
		payload, _ = sjson.Set(payload, "properties."+escapeKey(c.cfg.ThreadProperty)+".url", req.BackLink)
	}
	if strings.TrimSpace(req.Content) != "" {
		payload, _ = sjson.Set(payload, "children.0.object", "block")
		payload, _ = sjson.Set(payload, "children.0.type", "paragraph")
		payload, _ = sjson.Set(payload, "children.0.paragraph.rich_text.0.text.content", truncate(req.Content, 1900))
	}

	body, err := c.call(ctx, http.MethodPost, "/v1/pages", payload)
	if err != nil {
		return "", err
	}

	url := gjson.Get(body, "url").String()
	if url == "" {
		return "", fmt.Errorf("create record: response missing page url")
	}
	return url, nil
}

// FindRecordByBackLink queries the database for a page whose thread
// back-link property equals link. Returns "" when no record exists.
func (c *Client) FindRecordByBackLink(ctx context.Context, link string) (string, error) {
	if strings.TrimSpace(link) == "" {
		return "", nil
	}

	payload, _ := sjson.Set("", "filter.property", c.cfg.ThreadProperty)
	payload, _ = sjson.Set(payload, "filter.url.equals", link)
	payload, _ = sjson.Set(payload, "page_size", 1)

	body, err := c.call(ctx, http.MethodPost, "/v1/databases/"+c.cfg.DatabaseID+"/query", payload)
	if err != nil {
		return "", err
	}
	return gjson.Get(body, "results.0.url").String(), nil
}

// ValidProjectOptions fetches the select options of the project property.
// The returned order is the database's own, used verbatim in clarification
// replies.
func (c *Client) ValidProjectOptions(ctx context.Context) ([]string, error) {
	body, err := c.call(ctx, http.MethodGet, "/v1/databases/"+c.cfg.DatabaseID, "")
	if err != nil {
		return nil, err
	}

	raw := gjson.Get(body, "properties."+escapeKey(c.cfg.ProjectProperty)+".select.options.#.name")
	options := make([]string, 0, len(raw.Array()))
	for _, name := range raw.Array() {
		if name.String() != "" {
			options = append(options, name.String())
		}
	}
	if len(options) == 0 {
		return nil, fmt.Errorf("project property %q has no select options", c.cfg.ProjectProperty)
	}
	return options, nil
}

func (c *Client) call(ctx context.Context, method, path, payload string) (string, error) {
	var body io.Reader
	if payload != "" {
		body = bytes.NewBufferString(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIRoot+path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Notion-Version", c.cfg.NotionVersion)
	if payload != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = truncate(string(data), 200)
		}
		return "", fmt.Errorf("notion API status %d: %s", resp.StatusCode, msg)
	}
	return string(data), nil
}

// escapeKey protects property names containing sjson/gjson path syntax.
func escapeKey(key string) string {
	replacer := strings.NewReplacer(".", "\\.", "*", "\\*", "?", "\\?")
	return replacer.Replace(key)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
