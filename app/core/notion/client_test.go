package notion

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tidwall/gjson"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		Token:      "secret",
		APIRoot:    server.URL,
		DatabaseID: "db-1",
	})
}

func TestCreateRecord(t *testing.T) {
	var gotPath, gotAuth, gotVersion, gotBody string

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotVersion = r.Header.Get("Notion-Version")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Write([]byte(`{"url":"https://emerald-dev.notion.site/task-1"}`))
	})

	url, err := client.CreateRecord(context.Background(), CreateRequest{
		Title:    "Banner promocional",
		Project:  "Cask'r app",
		Deadline: "2026-02-14",
		Content:  "Necesito un banner",
		BackLink: "https://discord.com/channels/g1/t1",
	})
	if err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}
	if url != "https://emerald-dev.notion.site/task-1" {
		t.Fatalf("url = %q", url)
	}

	if gotPath != "/v1/pages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if gotVersion != "2022-06-28" {
		t.Fatalf("version header = %q", gotVersion)
	}

	payload := gjson.Parse(gotBody)
	if payload.Get("parent.database_id").String() != "db-1" {
		t.Fatalf("parent missing: %s", gotBody)
	}
	if payload.Get("properties.Name.title.0.text.content").String() != "Banner promocional" {
		t.Fatalf("title missing: %s", gotBody)
	}
	if payload.Get("properties.Proyecto.select.name").String() != "Cask'r app" {
		t.Fatalf("project missing: %s", gotBody)
	}
	if payload.Get("properties.Deadline.date.start").String() != "2026-02-14" {
		t.Fatalf("deadline missing: %s", gotBody)
	}
	if payload.Get("properties.Discord Thread.url").String() != "https://discord.com/channels/g1/t1" {
		t.Fatalf("back link missing: %s", gotBody)
	}
	if payload.Get("children.0.paragraph.rich_text.0.text.content").String() != "Necesito un banner" {
		t.Fatalf("body block missing: %s", gotBody)
	}
}

func TestCreateRecordOmitsEmptyFields(t *testing.T) {
	var gotBody string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Write([]byte(`{"url":"https://x.notion.site/t"}`))
	})

	if _, err := client.CreateRecord(context.Background(), CreateRequest{Title: "Solo título"}); err != nil {
		t.Fatalf("CreateRecord failed: %v", err)
	}

	payload := gjson.Parse(gotBody)
	if payload.Get("properties.Proyecto").Exists() {
		t.Fatalf("empty project should be omitted: %s", gotBody)
	}
	if payload.Get("properties.Deadline").Exists() {
		t.Fatalf("empty deadline should be omitted: %s", gotBody)
	}
	if payload.Get("children").Exists() {
		t.Fatalf("empty content should omit children: %s", gotBody)
	}
}

func TestCreateRecordRequiresTitle(t *testing.T) {
	client := NewClient(Config{DatabaseID: "db-1"})
	if _, err := client.CreateRecord(context.Background(), CreateRequest{}); err == nil {
		t.Fatal("missing title should fail")
	}
}

func TestCreateRecordAPIError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"validation failed"}`))
	})

	_, err := client.CreateRecord(context.Background(), CreateRequest{Title: "x"})
	if err == nil {
		t.Fatal("API error should surface")
	}
}

func TestFindRecordByBackLink(t *testing.T) {
	var gotPath, gotBody string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Write([]byte(`{"results":[{"url":"https://emerald-dev.notion.site/found"}]}`))
	})

	url, err := client.FindRecordByBackLink(context.Background(), "https://discord.com/channels/g1/t1")
	if err != nil {
		t.Fatalf("FindRecordByBackLink failed: %v", err)
	}
	if url != "https://emerald-dev.notion.site/found" {
		t.Fatalf("url = %q", url)
	}
	if gotPath != "/v1/databases/db-1/query" {
		t.Fatalf("path = %q", gotPath)
	}

	payload := gjson.Parse(gotBody)
	if payload.Get("filter.property").String() != "Discord Thread" {
		t.Fatalf("filter property: %s", gotBody)
	}
	if payload.Get("filter.url.equals").String() != "https://discord.com/channels/g1/t1" {
		t.Fatalf("filter value: %s", gotBody)
	}
}

func TestFindRecordByBackLinkNoResults(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})

	url, err := client.FindRecordByBackLink(context.Background(), "https://discord.com/channels/g1/t1")
	if err != nil {
		t.Fatalf("FindRecordByBackLink failed: %v", err)
	}
	if url != "" {
		t.Fatalf("url = %q, want empty", url)
	}
}

func TestFindRecordByBackLinkEmptyLink(t *testing.T) {
	called := false
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	url, err := client.FindRecordByBackLink(context.Background(), "  ")
	if err != nil || url != "" {
		t.Fatalf("url=%q err=%v", url, err)
	}
	if called {
		t.Fatal("empty link must not hit the API")
	}
}

func TestValidProjectOptions(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/databases/db-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"properties":{"Proyecto":{"select":{"options":[{"name":"Cask'r app"},{"name":"Brand Refresh"}]}}}}`))
	})

	options, err := client.ValidProjectOptions(context.Background())
	if err != nil {
		t.Fatalf("ValidProjectOptions failed: %v", err)
	}
	if len(options) != 2 || options[0] != "Cask'r app" || options[1] != "Brand Refresh" {
		t.Fatalf("options = %v", options)
	}
}

func TestValidProjectOptionsEmptyIsError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"properties":{}}`))
	})

	if _, err := client.ValidProjectOptions(context.Background()); err == nil {
		t.Fatal("missing options should fail")
	}
}
