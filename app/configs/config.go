package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type Config struct {
	Agent      AgentConfig      `json:"agent"`
	Discord    DiscordConfig    `json:"discord"`
	Notion     NotionConfig     `json:"notion"`
	Classifier ClassifierConfig `json:"classifier"`
	Intake     IntakeConfig     `json:"intake"`
}

type AgentConfig struct {
	Name string `json:"name"`
}

type DiscordConfig struct {
	BotToken        string `json:"bot_token"`
	APIRoot         string `json:"api_root"`
	GuildID         string `json:"guild_id"`
	ForumChannelID  string `json:"forum_channel_id"`
	NotifyChannelID string `json:"notify_channel_id"`
	PollIntervalSec int    `json:"poll_interval_sec"`
}

type NotionConfig struct {
	Token            string `json:"token"`
	APIRoot          string `json:"api_root"`
	DatabaseID       string `json:"database_id"`
	ProjectProperty  string `json:"project_property"`
	DeadlineProperty string `json:"deadline_property"`
	ThreadProperty   string `json:"thread_property"`
	WorkspaceSlug    string `json:"workspace_slug"`
	ManualFormURL    string `json:"manual_form_url"`
}

type ClassifierConfig struct {
	Model      string `json:"model"`
	TimeoutSec int    `json:"timeout_sec"`
}

type IntakeConfig struct {
	StatePath        string   `json:"state_path"`
	ManifestPath     string   `json:"manifest_path"`
	ErrorThreshold   int      `json:"error_threshold"`
	HistoryScanLimit int      `json:"history_scan_limit"`
	HistoryWindow    int      `json:"history_window"`
	AllowThreadIDs   []string `json:"allow_thread_ids"`
}

type Manager struct {
	path string
	mu   sync.RWMutex
	cfg  Config
}

func DefaultPath() string {
	return filepath.Join("config", "config.json")
}

func NewManager(path string) (*Manager, error) {
	cfg := defaultConfig()
	mgr := &Manager{
		path: path,
		cfg:  cfg,
	}
	if err := mgr.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}
	if err := mgr.save(); err != nil {
		return nil, err
	}
	return mgr, nil
}

func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) Update(apply func(*Config)) (Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	apply(&m.cfg)
	applyDefaults(&m.cfg)
	if err := m.saveLocked(); err != nil {
		return Config{}, err
	}
	return m.cfg, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return err
	}
	var fileCfg Config
	if err := json.Unmarshal(data, &fileCfg); err != nil {
		return err
	}
	m.cfg = fileCfg
	applyDefaults(&m.cfg)
	return nil
}

func (m *Manager) save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0644)
}

func defaultConfig() Config {
	return Config{
		Agent: AgentConfig{
			Name: "Esmeralda",
		},
		Discord: DiscordConfig{
			APIRoot:         "https://discord.com/api/v10",
			PollIntervalSec: 5,
		},
		Notion: NotionConfig{
			APIRoot:          "https://api.notion.com",
			ProjectProperty:  "Proyecto",
			DeadlineProperty: "Deadline",
			ThreadProperty:   "Discord Thread",
			WorkspaceSlug:    "emerald-dev",
		},
		Classifier: ClassifierConfig{
			Model:      "gpt-4o",
			TimeoutSec: 30,
		},
		Intake: IntakeConfig{
			StatePath:        filepath.Join("output", "state", "thread_state.json"),
			ManifestPath:     "thread_notion_mapping.csv",
			ErrorThreshold:   2,
			HistoryScanLimit: 10,
			HistoryWindow:    20,
		},
	}
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Agent.Name) == "" {
		cfg.Agent.Name = "Esmeralda"
	}
	if strings.TrimSpace(cfg.Discord.APIRoot) == "" {
		cfg.Discord.APIRoot = "https://discord.com/api/v10"
	}
	if cfg.Discord.PollIntervalSec <= 0 {
		cfg.Discord.PollIntervalSec = 5
	}
	if strings.TrimSpace(cfg.Notion.APIRoot) == "" {
		cfg.Notion.APIRoot = "https://api.notion.com"
	}
	if strings.TrimSpace(cfg.Notion.ProjectProperty) == "" {
		cfg.Notion.ProjectProperty = "Proyecto"
	}
	if strings.TrimSpace(cfg.Notion.DeadlineProperty) == "" {
		cfg.Notion.DeadlineProperty = "Deadline"
	}
	if strings.TrimSpace(cfg.Notion.ThreadProperty) == "" {
		cfg.Notion.ThreadProperty = "Discord Thread"
	}
	if strings.TrimSpace(cfg.Notion.WorkspaceSlug) == "" {
		cfg.Notion.WorkspaceSlug = "emerald-dev"
	}
	if strings.TrimSpace(cfg.Classifier.Model) == "" {
		cfg.Classifier.Model = "gpt-4o"
	}
	if cfg.Classifier.TimeoutSec <= 0 {
		cfg.Classifier.TimeoutSec = 30
	}
	if strings.TrimSpace(cfg.Intake.StatePath) == "" {
		cfg.Intake.StatePath = filepath.Join("output", "state", "thread_state.json")
	}
	if strings.TrimSpace(cfg.Intake.ManifestPath) == "" {
		cfg.Intake.ManifestPath = "thread_notion_mapping.csv"
	}
	if cfg.Intake.ErrorThreshold <= 0 {
		cfg.Intake.ErrorThreshold = 2
	}
	if cfg.Intake.HistoryScanLimit <= 0 {
		cfg.Intake.HistoryScanLimit = 10
	}
	if cfg.Intake.HistoryWindow <= 0 {
		cfg.Intake.HistoryWindow = 20
	}
}
