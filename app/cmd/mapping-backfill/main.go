// Command mapping-backfill rebuilds the thread -> task mapping CSV by
// walking the forum's active threads and extracting task links from the
// bot's own messages. Run it after a state loss so recovery has a durable
// source again.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	config "gatekeeper/app/configs"
	"gatekeeper/app/core/intake/manifest"
	"gatekeeper/app/core/interaction/discord"
	"gatekeeper/app/core/notion"
)

func main() {
	configPath := flag.String("config", config.DefaultPath(), "path to config file")
	outPath := flag.String("out", "", "output CSV path (default: configured manifest path)")
	scanLimit := flag.Int("scan", 50, "messages to scan per thread")
	flag.Parse()

	cfgManager, err := config.NewManager(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg := cfgManager.Get()

	target := *outPath
	if target == "" {
		target = cfg.Intake.ManifestPath
	}

	client := discord.NewClient(discord.Config{
		BotToken:       cfg.Discord.BotToken,
		APIRoot:        cfg.Discord.APIRoot,
		GuildID:        cfg.Discord.GuildID,
		ForumChannelID: cfg.Discord.ForumChannelID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	threads, err := client.ActiveForumThreads(ctx)
	if err != nil {
		log.Fatalf("Failed to list forum threads: %v", err)
	}
	fmt.Printf("Scanning %d active threads...\n", len(threads))

	var entries []manifest.Entry
	for _, thread := range threads {
		entry := manifest.Entry{
			ThreadID:    thread.ID,
			ThreadTitle: thread.Name,
			Status:      manifest.StatusPending,
		}

		messages, err := client.History(ctx, thread.ID, *scanLimit, false)
		if err != nil {
			log.Printf("Skipping thread %s, history failed: %v", thread.ID, err)
			entry.Notes = "history unreadable"
			entries = append(entries, entry)
			continue
		}
		for _, m := range messages {
			if !m.AuthorIsBot {
				continue
			}
			if url := notion.ExtractTaskURL(m.Content); url != "" && notion.BelongsToWorkspace(url, cfg.Notion.WorkspaceSlug) {
				entry.TaskURL = url
				entry.Status = manifest.StatusApproved
				break
			}
		}
		entries = append(entries, entry)
	}

	f, err := os.Create(target)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", target, err)
	}
	defer f.Close()

	if err := manifest.Write(f, entries); err != nil {
		log.Fatalf("Failed to write mapping: %v", err)
	}
	fmt.Printf("Wrote %d entries to %s\n", len(entries), target)
}
