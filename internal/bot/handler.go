package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/pkg/errors"

	"github.com/amalrajan30/spacedcode/internal/logger"
	"github.com/amalrajan30/spacedcode/internal/spaced"
	"github.com/amalrajan30/spacedcode/internal/storage"
)

// StartReviewCallback is sent by the daily reminder button.
const StartReviewCallback = "start_review_schedule"

// Telegram rate limits a chat to roughly one message per second, so the
// queue is capped per request.
const maxQueueMessages = 10

const requestTimeout = 30 * time.Second

type BotHandler struct {
	service *BotService
	log     *logger.Logger
}

func NewBotHandler(service *BotService, log *logger.Logger) *BotHandler {
	return &BotHandler{
		service: service,
		log:     log.With("component", "BotHandler"),
	}
}

func reviewKeyboard(problemID uint) gotgbot.InlineKeyboardMarkup {
	return gotgbot.InlineKeyboardMarkup{
		InlineKeyboard: [][]gotgbot.InlineKeyboardButton{{
			{
				Text:         "Remembered",
				CallbackData: reviewCallbackData(problemID, storage.ResultRemembered),
			},
			{
				Text:         "Forgot",
				CallbackData: reviewCallbackData(problemID, storage.ResultForgot),
			},
		}},
	}
}

// userMessage turns an engine error into something safe to show in chat.
func userMessage(err error) string {
	switch {
	case errors.Is(err, spaced.ErrNotFound):
		return "That problem no longer exists."
	case errors.Is(err, spaced.ErrValidation):
		return "Could not record that: " + err.Error()
	}
	return "Something went wrong, please try again later."
}

func (handler BotHandler) Start(b *gotgbot.Bot, ctx *ext.Context) error {
	msg := "<b>Spaced repetition for LeetCode</b>\n\n" +
		"/due - today's review queue\n" +
		"/stats - rotation statistics"

	_, err := ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to send start message: %w", err)
	}
	return nil
}

func (handler BotHandler) DueToday(b *gotgbot.Bot, ctx *ext.Context) error {
	return handler.sendQueue(b, ctx.EffectiveChat.Id)
}

// StartReviewing answers the reminder button with today's queue.
func (handler BotHandler) StartReviewing(b *gotgbot.Bot, ctx *ext.Context) error {
	cb := ctx.Update.CallbackQuery

	_, err := cb.Answer(b, &gotgbot.AnswerCallbackQueryOpts{
		Text: "Loading today's queue...",
	})
	if err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}

	return handler.sendQueue(b, ctx.EffectiveChat.Id)
}

func (handler BotHandler) sendQueue(b *gotgbot.Bot, chatID int64) error {
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	queue, err := handler.service.DueToday(reqCtx)
	if err != nil {
		handler.log.Error("Loading review queue failed", "chat_id", chatID, "error", err)
		_, sendErr := b.SendMessage(chatID, userMessage(err), nil)
		return sendErr
	}

	header := formatDueHeader(len(queue), handler.service.Today())
	if len(queue) > maxQueueMessages {
		header += fmt.Sprintf("\nShowing the top %d.", maxQueueMessages)
		queue = queue[:maxQueueMessages]
	}

	_, err = b.SendMessage(chatID, header, &gotgbot.SendMessageOpts{
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to send queue header: %w", err)
	}

	for _, item := range queue {
		_, err := b.SendMessage(chatID, formatQueueItem(item), &gotgbot.SendMessageOpts{
			ParseMode:   "HTML",
			ReplyMarkup: reviewKeyboard(item.ProblemID),
		})
		if err != nil {
			return fmt.Errorf("failed to send queue item %d: %w", item.ProblemID, err)
		}
	}

	handler.log.Debug("Sent review queue", "chat_id", chatID, "items", len(queue))
	return nil
}

func (handler BotHandler) HandleReviewCallback(b *gotgbot.Bot, ctx *ext.Context) error {
	cb := ctx.Update.CallbackQuery

	_, err := cb.Answer(b, &gotgbot.AnswerCallbackQueryOpts{
		Text: "Processing...",
	})
	if err != nil {
		return fmt.Errorf("failed to answer callback query: %w", err)
	}

	problemID, result, err := parseReviewCallback(cb.Data)
	if err != nil {
		handler.log.Warn("Bad review callback", "data", cb.Data, "error", err)
		_, _, err = cb.Message.EditText(b, "Got invalid response", nil)
		return err
	}

	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	reply, err := handler.service.Review(reqCtx, problemID, result)
	if err != nil {
		handler.log.Error("Recording review failed", "problem_id", problemID, "result", result, "error", err)
		_, _, err = cb.Message.EditText(b, userMessage(err), nil)
		return err
	}

	_, _, err = cb.Message.EditText(b, formatOutcome(reply), &gotgbot.EditMessageTextOpts{ParseMode: "HTML"})
	if err != nil {
		return fmt.Errorf("failed to edit message: %w", err)
	}

	handler.log.Info("Review recorded", "problem_id", problemID, "result", result, "next", reply.Outcome.NextReviewDate)
	return nil
}

func (handler BotHandler) Stats(b *gotgbot.Bot, ctx *ext.Context) error {
	reqCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var msg string
	stats, err := handler.service.Stats(reqCtx)
	if err != nil {
		handler.log.Error("Loading stats failed", "error", err)
		msg = userMessage(err)
	} else {
		msg = formatStats(stats)
	}

	_, err = ctx.EffectiveMessage.Reply(b, msg, &gotgbot.SendMessageOpts{
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("failed to send stats message: %w", err)
	}
	return nil
}
