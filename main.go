package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "gatekeeper/app/configs"
	"gatekeeper/app/core/classifier"
	"gatekeeper/app/core/intake"
	"gatekeeper/app/core/intake/manifest"
	"gatekeeper/app/core/intake/state"
	"gatekeeper/app/core/interaction/discord"
	"gatekeeper/app/core/interaction/gateway"
	"gatekeeper/app/core/journal"
	"gatekeeper/app/core/notion"
	"gatekeeper/app/core/queue"
	"gatekeeper/app/pkg/logger"
)

func main() {
	if err := logger.Init("output/logs"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger.Info("Gatekeeper Starting...")

	cfgManager, err := config.NewManager(config.DefaultPath())
	if err != nil {
		logger.Error("Failed to load config: %v", err)
		os.Exit(1)
	}
	cfg := cfgManager.Get()

	stateStore := state.NewStore(cfg.Intake.StatePath)
	logger.Info("State store loaded (%d threads)", stateStore.Len())

	mapping, err := manifest.Load(cfg.Intake.ManifestPath)
	if err != nil {
		logger.Error("Failed to load thread mapping: %v", err)
		os.Exit(1)
	}
	logger.Info("Thread mapping loaded (%d entries)", mapping.Len())

	journalDB, err := journal.NewSQLiteDB("output/db")
	if err != nil {
		logger.Error("Failed to initialize journal DB: %v", err)
		os.Exit(1)
	}
	defer journalDB.Close()
	recorder := journal.NewRecorder(journalDB)

	tasks := notion.NewClient(notion.Config{
		Token:            cfg.Notion.Token,
		APIRoot:          cfg.Notion.APIRoot,
		DatabaseID:       cfg.Notion.DatabaseID,
		ProjectProperty:  cfg.Notion.ProjectProperty,
		DeadlineProperty: cfg.Notion.DeadlineProperty,
		ThreadProperty:   cfg.Notion.ThreadProperty,
	})

	cls := classifier.NewClient(classifier.Config{
		APIKey:  os.Getenv("OPENAI_API_KEY"),
		Model:   cfg.Classifier.Model,
		Timeout: time.Duration(cfg.Classifier.TimeoutSec) * time.Second,
	})

	discordClient := discord.NewClient(discord.Config{
		BotToken:       cfg.Discord.BotToken,
		APIRoot:        cfg.Discord.APIRoot,
		GuildID:        cfg.Discord.GuildID,
		ForumChannelID: cfg.Discord.ForumChannelID,
	})

	agent := intake.NewAgent(discordClient, cls, tasks, stateStore, mapping, recorder, intake.Options{
		Name:             cfg.Agent.Name,
		GuildID:          cfg.Discord.GuildID,
		NotifyChannelID:  cfg.Discord.NotifyChannelID,
		WorkspaceSlug:    cfg.Notion.WorkspaceSlug,
		ManualFormURL:    cfg.Notion.ManualFormURL,
		ErrorThreshold:   cfg.Intake.ErrorThreshold,
		HistoryScanLimit: cfg.Intake.HistoryScanLimit,
		HistoryWindow:    cfg.Intake.HistoryWindow,
		AllowThreadIDs:   cfg.Intake.AllowThreadIDs,
		BootTime:         time.Now(),
	})

	gw := gateway.NewGateway(agent)
	gw.RegisterChannel(discord.NewChannel(discordClient, time.Duration(cfg.Discord.PollIntervalSec)*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	executionQueue := queue.New(128)
	if err := executionQueue.Start(ctx); err != nil {
		logger.Error("Failed to start execution queue: %v", err)
		os.Exit(1)
	}
	defer func() {
		if err := executionQueue.Stop(3 * time.Second); err != nil {
			logger.Error("Queue shutdown timeout: %v", err)
		}
	}()
	gw.SetExecutionQueue(executionQueue, 5*time.Second)

	go func() {
		if err := gw.Start(ctx); err != nil {
			logger.Error("Gateway crashed: %v", err)
			os.Exit(1)
		}
	}()

	logger.Info("Gatekeeper is ready to serve.")
	fmt.Println("- Forum intake: polling guild", cfg.Discord.GuildID)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Received signal: %v. Gatekeeper Shutting Down...", sig)
	cancel()
}
