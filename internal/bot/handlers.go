package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/mindmentor/internal/scheduler"
	"github.com/example/mindmentor/pkg/models"
)

// Constants for callback data
const (
	callbackDone    = "done:"
	callbackPlan    = "plan"
	maxDailyMinutes = 16 * 60
)

// HandleCommand handles bot commands
func (b *Bot) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.From == nil || message.Chat == nil {
		return fmt.Errorf("invalid message: required fields are missing")
	}
	var err error
	switch message.Command() {
	case "start":
		err = b.handleStart(ctx, message)
	case "plan":
		err = b.handlePlan(ctx, message.From.ID, message.Chat.ID)
	case "done":
		err = b.handleDone(ctx, message)
	case "review":
		err = b.handleReview(ctx, message)
	case "budget":
		err = b.handleBudget(ctx, message)
	case "stats":
		err = b.handleStats(ctx, message)
	default:
		err = b.reply(message.Chat.ID, "Unknown command. Use /plan to see today's plan.")
	}
	return err
}

func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) error {
	userID := message.From.ID
	prefs, err := b.prefs.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load preferences: %w", err)
	}
	if prefs == nil {
		prefs = &models.StudyPreferences{
			UserID:           userID,
			DailyMinutes:     b.config.DefaultMinutes,
			NotificationHour: b.config.NotificationHour,
		}
	}
	prefs.ChatID = message.Chat.ID
	prefs.Active = true
	if err := b.prefs.Save(ctx, prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	if err := b.regenerate(ctx, prefs); err != nil {
		return err
	}

	text := "👋 Welcome to MindMentor!\n\n" +
		"I plan your study day around what you are about to forget, what you are weak at and what you have not started yet.\n\n" +
		"/plan - today's plan\n" +
		"/done <topic> [quality] - finish a block, optionally rating recall 0-5\n" +
		"/review <topic> <quality> - log a review\n" +
		"/budget <minutes> - change your daily study time"
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	msg.ReplyMarkup = createKeyboard([][]MenuButton{{{Text: "📅 Today's plan", CallbackData: callbackPlan}}})
	_, err = b.out.Send(msg)
	return err
}

func (b *Bot) handlePlan(ctx context.Context, userID, chatID int64) error {
	today := models.Day(b.now())
	day, err := b.plans.Day(ctx, userID, today)
	if err != nil {
		return fmt.Errorf("failed to load plan: %w", err)
	}
	if day == nil {
		prefs, err := b.preferencesOrDefault(ctx, userID)
		if err != nil {
			return err
		}
		if err := b.regenerate(ctx, prefs); err != nil {
			return err
		}
		if day, err = b.plans.Day(ctx, userID, today); err != nil {
			return fmt.Errorf("failed to load plan: %w", err)
		}
	}
	if day == nil {
		day = &models.ScheduleDay{UserID: userID, Date: today}
	}
	msg := tgbotapi.NewMessage(chatID, formatPlan(day))
	if kb := planKeyboard(day); kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err = b.out.Send(msg)
	return err
}

func (b *Bot) handleDone(ctx context.Context, message *tgbotapi.Message) error {
	topicID, quality, rated, err := parseDoneArgs(message.CommandArguments())
	if err != nil {
		return b.reply(message.Chat.ID, "Usage: /done <topic id> [quality 0-5]")
	}
	text, err := b.complete(ctx, message.From.ID, topicID)
	if err != nil {
		return err
	}
	if rated {
		key := idempotencyKey(message.Chat.ID, message.MessageID)
		reviewText, err := b.review(ctx, message.From.ID, topicID, quality, key)
		if err != nil {
			return err
		}
		text += "\n" + reviewText
	}
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleReview(ctx context.Context, message *tgbotapi.Message) error {
	topicID, quality, rated, err := parseDoneArgs(message.CommandArguments())
	if err != nil || !rated {
		return b.reply(message.Chat.ID, "Usage: /review <topic id> <quality 0-5>")
	}
	text, err := b.review(ctx, message.From.ID, topicID, quality, idempotencyKey(message.Chat.ID, message.MessageID))
	if err != nil {
		return err
	}
	return b.reply(message.Chat.ID, text)
}

func (b *Bot) handleBudget(ctx context.Context, message *tgbotapi.Message) error {
	minutes, err := parseMinutes(message.CommandArguments())
	if err != nil {
		return b.reply(message.Chat.ID, fmt.Sprintf("Usage: /budget <minutes>, between 0 and %d", maxDailyMinutes))
	}
	prefs, err := b.preferencesOrDefault(ctx, message.From.ID)
	if err != nil {
		return err
	}
	prefs.DailyMinutes = minutes
	prefs.ChatID = message.Chat.ID
	if err := b.prefs.Save(ctx, prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	if err := b.regenerate(ctx, prefs); err != nil {
		return err
	}
	return b.reply(message.Chat.ID, fmt.Sprintf("✅ Daily budget set to %d minutes. Your plan was rebuilt, see /plan.", minutes))
}

func (b *Bot) handleStats(ctx context.Context, message *tgbotapi.Message) error {
	if !b.isAdmin(message.From.ID) {
		return b.reply(message.Chat.ID, "This command is only available for administrators.")
	}
	var text strings.Builder
	text.WriteString("📊 Statistics\n\n")
	if b.cache != nil {
		st, err := b.cache.Stats(ctx)
		if err != nil {
			return fmt.Errorf("failed to get cache stats: %w", err)
		}
		text.WriteString(fmt.Sprintf("LLM cache: %d entries, %d hits, %d misses (%.1f%% hit rate)\n\n",
			st.Entries, st.Hits, st.Misses, st.HitRate*100))
	}
	today := models.Day(b.now())
	st, err := b.plans.Stats(ctx, message.From.ID, today.AddDate(0, 0, -6), today)
	if err != nil {
		return fmt.Errorf("failed to get plan stats: %w", err)
	}
	text.WriteString(formatStats(st))
	return b.reply(message.Chat.ID, text.String())
}

// HandleCallback handles inline keyboard presses
func (b *Bot) HandleCallback(ctx context.Context, callback *tgbotapi.CallbackQuery) error {
	if callback.From == nil || callback.Message == nil || callback.Message.Chat == nil {
		return fmt.Errorf("invalid callback: required fields are missing")
	}
	if _, err := b.out.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		b.logger.Warn("answering callback failed", "error", err)
	}
	userID, chatID := callback.From.ID, callback.Message.Chat.ID

	switch data := callback.Data; {
	case data == callbackPlan:
		return b.handlePlan(ctx, userID, chatID)
	case strings.HasPrefix(data, callbackDone):
		topicID, err := strconv.ParseInt(strings.TrimPrefix(data, callbackDone), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid callback data %q", data)
		}
		text, err := b.complete(ctx, userID, topicID)
		if err != nil {
			return err
		}
		return b.reply(chatID, text)
	default:
		return b.reply(chatID, "Unknown action.")
	}
}

// complete marks a topic in today's plan done and returns the reply text
func (b *Bot) complete(ctx context.Context, userID, topicID int64) (string, error) {
	item, err := b.plans.MarkCompleted(ctx, userID, models.Day(b.now()), topicID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Sprintf("Topic %d is not in today's plan.", topicID), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to complete item: %w", err)
	}
	return fmt.Sprintf("✅ %s %s done (%d min).", activityLabel(item.ActivityType), item.TopicName, item.DurationMinutes), nil
}

// review records a recall rating and returns the reply text
func (b *Bot) review(ctx context.Context, userID, topicID int64, quality int, key string) (string, error) {
	outcome, err := b.plans.RecordReviewQuality(ctx, userID, topicID, quality, key)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fmt.Sprintf("Unknown topic %d.", topicID), nil
	case errors.Is(err, models.ErrValidation):
		return "Quality must be between 0 and 5.", nil
	case err != nil:
		return "", fmt.Errorf("failed to record review: %w", err)
	}
	rec := outcome.Record
	return fmt.Sprintf("🔁 Next review of topic %d on %s (every %d day(s)).",
		topicID, rec.NextReviewDate.Format(models.DateLayout), rec.IntervalDays), nil
}

func (b *Bot) preferencesOrDefault(ctx context.Context, userID int64) (*models.StudyPreferences, error) {
	prefs, err := b.prefs.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	if prefs == nil {
		prefs = &models.StudyPreferences{
			UserID:           userID,
			ChatID:           userID,
			DailyMinutes:     b.config.DefaultMinutes,
			NotificationHour: b.config.NotificationHour,
			Active:           true,
		}
	}
	return prefs, nil
}

func (b *Bot) regenerate(ctx context.Context, prefs *models.StudyPreferences) error {
	_, err := b.plans.Regenerate(ctx, scheduler.Request{
		UserID:       prefs.UserID,
		StartDate:    models.Day(b.now()),
		NumDays:      b.config.PlanDays,
		DailyMinutes: prefs.DailyMinutes,
		Subjects:     prefs.Subjects,
	})
	if err != nil {
		return fmt.Errorf("failed to build plan: %w", err)
	}
	return nil
}

// idempotencyKey ties a review to the Telegram message so redelivered
// updates do not advance the schedule twice
func idempotencyKey(chatID int64, messageID int) string {
	return fmt.Sprintf("tg-%d-%d", chatID, messageID)
}

// parseDoneArgs reads "<topic id> [quality]"
func parseDoneArgs(args string) (topicID int64, quality int, rated bool, err error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return 0, 0, false, fmt.Errorf("expected 1 or 2 arguments, got %d", len(fields))
	}
	topicID, err = strconv.ParseInt(fields[0], 10, 64)
	if err != nil || topicID <= 0 {
		return 0, 0, false, fmt.Errorf("invalid topic id %q", fields[0])
	}
	if len(fields) == 2 {
		quality, err = strconv.Atoi(fields[1])
		if err != nil || quality < 0 || quality > 5 {
			return 0, 0, false, fmt.Errorf("invalid quality %q", fields[1])
		}
		rated = true
	}
	return topicID, quality, rated, nil
}

func parseMinutes(args string) (int, error) {
	minutes, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return 0, fmt.Errorf("invalid minutes %q", args)
	}
	if minutes < 0 || minutes > maxDailyMinutes {
		return 0, fmt.Errorf("minutes %d out of range", minutes)
	}
	return minutes, nil
}

func activityLabel(a models.ActivityType) string {
	switch a {
	case models.ActivityRevise:
		return "🔁 Revise"
	case models.ActivityPractice:
		return "✏️ Practice"
	case models.ActivityLearn:
		return "📘 Learn"
	default:
		return string(a)
	}
}

func formatPlan(day *models.ScheduleDay) string {
	var text strings.Builder
	text.WriteString(fmt.Sprintf("📅 Plan for %s (%d min)\n\n", day.Date.Format(models.DateLayout), day.TotalMinutes()))
	if len(day.Items) == 0 {
		text.WriteString("Nothing scheduled. Enjoy the day off!")
		return text.String()
	}
	for i, it := range day.Items {
		mark := "⬜"
		if it.Completed {
			mark = "✅"
		}
		text.WriteString(fmt.Sprintf("%d. %s %s %s [%d] (%s), %d min\n",
			i+1, mark, activityLabel(it.ActivityType), it.TopicName, it.TopicID, it.Subject, it.DurationMinutes))
	}
	text.WriteString(fmt.Sprintf("\nProgress: %.0f%%", day.CompletionPercentage()))
	return text.String()
}

// planKeyboard offers one button per open item, nil when everything is done
func planKeyboard(day *models.ScheduleDay) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]MenuButton
	for _, it := range day.Items {
		if it.Completed {
			continue
		}
		rows = append(rows, []MenuButton{{
			Text:         "✅ " + it.TopicName,
			CallbackData: callbackDone + strconv.FormatInt(it.TopicID, 10),
		}})
	}
	if len(rows) == 0 {
		return nil
	}
	kb := createKeyboard(rows)
	return &kb
}

func formatStats(st *scheduler.Stats) string {
	return fmt.Sprintf("Last 7 days: %d planned day(s), %d fully done, %.1f%% average completion\n"+
		"Blocks: %d of %d done, %d of %d minutes",
		st.Days, st.CompletedDays, st.AvgCompletion,
		st.ItemsCompleted, st.ItemsScheduled, st.MinutesCompleted, st.MinutesPlanned)
}
