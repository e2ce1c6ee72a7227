package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/amalrajan30/spacedcode/internal/bot"
	"github.com/amalrajan30/spacedcode/internal/logger"
	"github.com/amalrajan30/spacedcode/internal/spaced"
)

// MessageSender is satisfied by *gotgbot.Bot.
type MessageSender interface {
	SendMessage(chatId int64, text string, opts *gotgbot.SendMessageOpts) (*gotgbot.Message, error)
}

type QueueSource interface {
	DailyReviewQueue(ctx context.Context, target time.Time) ([]spaced.QueueItem, error)
}

// Scheduler sends the daily review reminder on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	sender MessageSender
	queue  QueueSource
	chatID int64
	log    *logger.Logger
}

func NewScheduler(sender MessageSender, queue QueueSource, chatID int64, loc *time.Location, log *logger.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLocation(loc)),
		sender: sender,
		queue:  queue,
		chatID: chatID,
		log:    log.With("component", "Scheduler"),
	}
}

// Start registers the reminder under a standard five field cron spec and
// starts the cron loop in its own goroutine.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.RunScheduled); err != nil {
		return errors.Wrapf(err, "invalid reminder schedule %q", spec)
	}
	s.cron.Start()
	s.log.Info("Reminder scheduled", "spec", spec, "chat_id", s.chatID)
	return nil
}

// Stop halts the cron loop. The returned context is done once a running
// reminder finishes.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func reminderText(queue []spaced.QueueItem) string {
	intensive := 0
	for _, item := range queue {
		if item.ReviewType == spaced.IntensiveRecovery {
			intensive++
		}
	}

	noun := "problems"
	if len(queue) == 1 {
		noun = "problem"
	}
	msg := fmt.Sprintf("<b>%d %s</b> due today", len(queue), noun)
	if intensive > 0 {
		msg += fmt.Sprintf(" (%d in intensive recovery)", intensive)
	}
	return msg + ".\nReady to start todays review?"
}

func (s *Scheduler) RunScheduled() {
	s.log.Debug("Running scheduled reminder")

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	queue, err := s.queue.DailyReviewQueue(ctx, time.Time{})
	if err != nil {
		s.log.Error("failed to load review queue for reminder", "error", err)
		return
	}
	if len(queue) == 0 {
		s.log.Info("Nothing due, skipping reminder")
		return
	}

	keyboard := gotgbot.InlineKeyboardMarkup{
		InlineKeyboard: [][]gotgbot.InlineKeyboardButton{{
			{
				Text:         "Start Review",
				CallbackData: bot.StartReviewCallback,
			},
		}},
	}

	_, err = s.sender.SendMessage(s.chatID, reminderText(queue), &gotgbot.SendMessageOpts{
		ParseMode:   "HTML",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		s.log.Error("failed to send scheduled reminder", "chat_id", s.chatID, "error", err)
	}
}
