package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"gatekeeper/app/pkg/types"
)

func TestNewerID(t *testing.T) {
	cases := []struct {
		a, b string
		want bool
	}{
		{"10", "9", true},
		{"9", "10", false},
		{"21", "12", true},
		{"12", "12", false},
	}
	for _, tc := range cases {
		if got := newerID(tc.a, tc.b); got != tc.want {
			t.Fatalf("newerID(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestChannelDeliversNewUserMessages(t *testing.T) {
	var mu sync.Mutex
	botMessageVisible := false

	mux := http.NewServeMux()
	mux.HandleFunc("/guilds/g1/threads/active", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"threads":[{"id":"t1","parent_id":"forum-1","name":"Banner"}]}`))
	})
	mux.HandleFunc("/channels/t1/messages", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		withBot := botMessageVisible
		mu.Unlock()
		if withBot {
			w.Write([]byte(`[
				{"id":"3","channel_id":"t1","content":"respuesta","author":{"id":"bot-1","bot":true}},
				{"id":"2","channel_id":"t1","content":"detalle","author":{"id":"u1"}},
				{"id":"1","channel_id":"t1","content":"starter","author":{"id":"u1"}}
			]`))
			return
		}
		w.Write([]byte(`[
			{"id":"2","channel_id":"t1","content":"detalle","author":{"id":"u1"}},
			{"id":"1","channel_id":"t1","content":"starter","author":{"id":"u1"}}
		]`))
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(Config{
		BotToken:       "x",
		APIRoot:        server.URL,
		GuildID:        "g1",
		ForumChannelID: "forum-1",
	})
	channel := NewChannel(client, 10*time.Millisecond)

	var delivered []types.Message
	var deliveredMu sync.Mutex
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		channel.Start(ctx, func(m types.Message) {
			deliveredMu.Lock()
			delivered = append(delivered, m)
			deliveredMu.Unlock()
		})
	}()

	waitFor(t, func() bool {
		deliveredMu.Lock()
		defer deliveredMu.Unlock()
		return len(delivered) == 2
	})

	// A later poll with only a bot reply delivers nothing new.
	mu.Lock()
	botMessageVisible = true
	mu.Unlock()
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	deliveredMu.Lock()
	defer deliveredMu.Unlock()
	if len(delivered) != 2 {
		t.Fatalf("delivered = %d messages, want 2 user messages", len(delivered))
	}
	if delivered[0].ID != "1" || delivered[1].ID != "2" {
		t.Fatalf("delivery order: %+v", delivered)
	}
	for _, m := range delivered {
		if m.AuthorIsBot {
			t.Fatalf("bot message delivered: %+v", m)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
