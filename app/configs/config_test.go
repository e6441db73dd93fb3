package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewManagerCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "config.json")

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not created: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Agent.Name != "Esmeralda" {
		t.Fatalf("agent name = %q", cfg.Agent.Name)
	}
	if cfg.Notion.WorkspaceSlug != "emerald-dev" {
		t.Fatalf("workspace slug = %q", cfg.Notion.WorkspaceSlug)
	}
	if cfg.Intake.ErrorThreshold != 2 {
		t.Fatalf("error threshold = %d", cfg.Intake.ErrorThreshold)
	}
	if cfg.Discord.PollIntervalSec != 5 {
		t.Fatalf("poll interval = %d", cfg.Discord.PollIntervalSec)
	}
}

func TestManagerLoadsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	seed := `{"discord":{"bot_token":"abc","guild_id":"g1"},"intake":{"allow_thread_ids":["t1"]}}`
	if err := os.WriteFile(path, []byte(seed), 0644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := mgr.Get()
	if cfg.Discord.BotToken != "abc" || cfg.Discord.GuildID != "g1" {
		t.Fatalf("discord config lost: %+v", cfg.Discord)
	}
	if len(cfg.Intake.AllowThreadIDs) != 1 || cfg.Intake.AllowThreadIDs[0] != "t1" {
		t.Fatalf("allow list lost: %v", cfg.Intake.AllowThreadIDs)
	}
	// Missing fields get defaults.
	if cfg.Notion.ProjectProperty != "Proyecto" {
		t.Fatalf("project property = %q", cfg.Notion.ProjectProperty)
	}
	if cfg.Classifier.Model != "gpt-4o" {
		t.Fatalf("model = %q", cfg.Classifier.Model)
	}
}

func TestManagerUpdatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	updated, err := mgr.Update(func(c *Config) {
		c.Discord.GuildID = "g2"
		c.Classifier.TimeoutSec = -1
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Discord.GuildID != "g2" {
		t.Fatalf("guild = %q", updated.Discord.GuildID)
	}
	// Invalid values are normalized back to defaults.
	if updated.Classifier.TimeoutSec != 30 {
		t.Fatalf("timeout = %d, want default", updated.Classifier.TimeoutSec)
	}

	reloaded, err := NewManager(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if reloaded.Get().Discord.GuildID != "g2" {
		t.Fatal("update not persisted")
	}
}

func TestNormalizeConfig(t *testing.T) {
	cfg := NormalizeConfig(Config{})
	if cfg.Intake.HistoryScanLimit != 10 || cfg.Intake.HistoryWindow != 20 {
		t.Fatalf("intake defaults: %+v", cfg.Intake)
	}
	if cfg.Notion.ThreadProperty != "Discord Thread" {
		t.Fatalf("thread property = %q", cfg.Notion.ThreadProperty)
	}
}
