package discord

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeeper/app/pkg/types"
)

func testServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		BotToken:       "token-1",
		APIRoot:        server.URL,
		GuildID:        "g1",
		ForumChannelID: "forum-1",
	})
}

func TestSend(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Write([]byte(`{"id":"m1","channel_id":"t1","content":"hola","author":{"id":"bot-1","bot":true},"timestamp":"2026-02-10T12:00:00Z"}`))
	})

	msg, err := client.Send(context.Background(), "t1", "hola")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if gotPath != "/channels/t1/messages" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bot token-1" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["content"] != "hola" {
		t.Fatalf("body = %v", gotBody)
	}
	if msg.ID != "m1" || msg.ThreadID != "t1" || !msg.AuthorIsBot {
		t.Fatalf("message = %+v", msg)
	}
	if msg.JumpLink != "https://discord.com/channels/g1/t1/m1" {
		t.Fatalf("jump link = %q", msg.JumpLink)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("timestamp not parsed")
	}
}

func TestSendEmbed(t *testing.T) {
	var gotBody string
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Write([]byte(`{"id":"m1","channel_id":"t1"}`))
	})

	_, err := client.SendEmbed(context.Background(), "t1", types.Embed{
		Title:       "Design Intake Quality Gate",
		Description: "✅ APROBADO",
		Color:       0x2ECC71,
		Footer:      "Esmeralda",
	})
	if err != nil {
		t.Fatalf("SendEmbed failed: %v", err)
	}

	var payload struct {
		Embeds []apiEmbed `json:"embeds"`
	}
	if err := json.Unmarshal([]byte(gotBody), &payload); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(payload.Embeds) != 1 {
		t.Fatalf("embeds = %d", len(payload.Embeds))
	}
	e := payload.Embeds[0]
	if e.Title != "Design Intake Quality Gate" || e.Color != 0x2ECC71 {
		t.Fatalf("embed = %+v", e)
	}
	if e.Footer == nil || e.Footer.Text != "Esmeralda" {
		t.Fatalf("footer = %+v", e.Footer)
	}
}

func TestHistoryOrdering(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "3" {
			t.Errorf("limit = %q", got)
		}
		// Discord serves newest first.
		w.Write([]byte(`[
			{"id":"3","channel_id":"t1","content":"c","author":{"id":"u1"}},
			{"id":"2","channel_id":"t1","content":"b","author":{"id":"u1"}},
			{"id":"1","channel_id":"t1","content":"a","author":{"id":"u1"}}
		]`))
	})

	newest, err := client.History(context.Background(), "t1", 3, false)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if newest[0].ID != "3" || newest[2].ID != "1" {
		t.Fatalf("newest-first order broken: %+v", newest)
	}

	oldest, err := client.History(context.Background(), "t1", 3, true)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if oldest[0].ID != "1" || oldest[2].ID != "3" {
		t.Fatalf("oldest-first order broken: %+v", oldest)
	}
}

func TestDeleteMessagesBulkFallback(t *testing.T) {
	var bulkCalls, singleDeletes int
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost:
			bulkCalls++
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"message":"too old"}`))
		case r.Method == http.MethodDelete:
			singleDeletes++
			w.WriteHeader(http.StatusNoContent)
		}
	})

	if err := client.DeleteMessages(context.Background(), "t1", []string{"m1", "m2", "m3"}); err != nil {
		t.Fatalf("DeleteMessages failed: %v", err)
	}
	if bulkCalls != 1 {
		t.Fatalf("bulk calls = %d, want 1", bulkCalls)
	}
	if singleDeletes != 3 {
		t.Fatalf("single deletes = %d, want 3", singleDeletes)
	}
}

func TestDeleteMessagesSingleSkipsBulk(t *testing.T) {
	var bulkCalls, singleDeletes int
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			bulkCalls++
		} else {
			singleDeletes++
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.DeleteMessages(context.Background(), "t1", []string{"m1"}); err != nil {
		t.Fatalf("DeleteMessages failed: %v", err)
	}
	if bulkCalls != 0 || singleDeletes != 1 {
		t.Fatalf("bulk=%d single=%d", bulkCalls, singleDeletes)
	}
}

func TestActiveForumThreadsFiltersParent(t *testing.T) {
	client := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/guilds/g1/threads/active" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"threads":[
			{"id":"t1","parent_id":"forum-1","name":"Banner"},
			{"id":"t2","parent_id":"other","name":"Off topic"},
			{"id":"t3","parent_id":"forum-1","name":"Logo"}
		]}`))
	})

	threads, err := client.ActiveForumThreads(context.Background())
	if err != nil {
		t.Fatalf("ActiveForumThreads failed: %v", err)
	}
	if len(threads) != 2 || threads[0].ID != "t1" || threads[1].ID != "t3" {
		t.Fatalf("threads = %+v", threads)
	}
}
