package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"

	"github.com/amalrajan30/spacedcode/internal/api"
	"github.com/amalrajan30/spacedcode/internal/bot"
	"github.com/amalrajan30/spacedcode/internal/config"
	"github.com/amalrajan30/spacedcode/internal/llm"
	"github.com/amalrajan30/spacedcode/internal/logger"
	"github.com/amalrajan30/spacedcode/internal/scheduler"
	"github.com/amalrajan30/spacedcode/internal/spaced"
	"github.com/amalrajan30/spacedcode/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("loading config failed: " + err.Error())
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic("Failed to create logger: " + err.Error())
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatal("Database unavailable", "error", err)
	}

	repo := storage.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal("Migration failed", "error", err)
	}

	engine := spaced.NewEngine(repo, repo,
		spaced.WithLocation(cfg.Location),
		spaced.WithLogger(log),
	)

	server := api.NewServer(cfg.HTTPAddr, log, api.RouterConfig{
		Logger:        log,
		ReviewHandler: api.NewReviewHandler(log, engine),
	})
	go func() {
		if err := server.Run(); err != nil {
			log.Error("HTTP server stopped", "error", err)
			stop()
		}
	}()

	var updater *ext.Updater
	var reminder *scheduler.Scheduler
	if cfg.BotEnabled() {
		updater, reminder = startBot(cfg, log, engine)
	} else {
		log.Info("BOT_TOKEN not set, Telegram bot disabled")
	}

	<-ctx.Done()
	log.Info("Shutting down")

	if reminder != nil {
		<-reminder.Stop().Done()
	}
	if updater != nil {
		if err := updater.Stop(); err != nil {
			log.Warn("Stopping updater failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown failed", "error", err)
	}
}

func startBot(cfg config.Config, log *logger.Logger, engine *spaced.Engine) (*ext.Updater, *scheduler.Scheduler) {
	b, err := gotgbot.NewBot(cfg.BotToken, nil)
	if err != nil {
		log.Fatal("Failed to create new bot", "error", err)
	}

	var hints bot.HintGenerator
	if cfg.HintsEnabled() {
		hints = llm.NewHintGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, log)
	}
	handler := bot.NewBotHandler(bot.NewBotService(engine, hints, log), log)

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *gotgbot.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			log.Error("Error occurred while handling update", "error", err)
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})

	dispatcher.AddHandler(handlers.NewCommand("start", handler.Start))
	dispatcher.AddHandler(handlers.NewCommand("due", handler.DueToday))
	dispatcher.AddHandler(handlers.NewCommand("stats", handler.Stats))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Equal(bot.StartReviewCallback), handler.StartReviewing))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix("review_"), handler.HandleReviewCallback))

	updater := ext.NewUpdater(dispatcher, nil)
	err = updater.StartPolling(b, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &gotgbot.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &gotgbot.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		log.Fatal("failed to start polling", "error", err)
	}
	log.Info("Bot has been started", "username", b.User.Username)

	if cfg.ReminderChatID == 0 {
		log.Info("REMINDER_CHAT_ID not set, daily reminder disabled")
		return updater, nil
	}

	reminder := scheduler.NewScheduler(b, engine, cfg.ReminderChatID, cfg.Location, log)
	if err := reminder.Start(cfg.ReminderCron); err != nil {
		log.Fatal("Reminder schedule rejected", "error", err)
	}
	return updater, reminder
}
