package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/example/mindmentor/internal/mastery"
	"github.com/example/mindmentor/internal/scheduler"
	"github.com/example/mindmentor/pkg/models"
)

// MenuButton represents a button in the menu
type MenuButton struct {
	Text         string
	CallbackData string
}

// createKeyboard creates a keyboard from menu buttons
func createKeyboard(buttons [][]MenuButton) tgbotapi.InlineKeyboardMarkup {
	var keyboard [][]tgbotapi.InlineKeyboardButton
	for _, row := range buttons {
		var keyboardRow []tgbotapi.InlineKeyboardButton
		for _, button := range row {
			keyboardRow = append(keyboardRow, tgbotapi.NewInlineKeyboardButtonData(button.Text, button.CallbackData))
		}
		keyboard = append(keyboard, keyboardRow)
	}
	return tgbotapi.NewInlineKeyboardMarkup(keyboard...)
}

// PlanService is the part of the scheduler the bot drives
type PlanService interface {
	Day(ctx context.Context, userID int64, date time.Time) (*models.ScheduleDay, error)
	Regenerate(ctx context.Context, req scheduler.Request) ([]models.ScheduleDay, error)
	MarkCompleted(ctx context.Context, userID int64, date time.Time, topicID int64) (*models.ScheduleItem, error)
	RecordReviewQuality(ctx context.Context, userID, topicID int64, quality int, idempotencyKey string) (*mastery.ReviewOutcome, error)
	Stats(ctx context.Context, userID int64, from, to time.Time) (*scheduler.Stats, error)
}

// PreferenceStore persists per-user study settings
type PreferenceStore interface {
	Get(ctx context.Context, userID int64) (*models.StudyPreferences, error)
	Save(ctx context.Context, p *models.StudyPreferences) error
}

// sender is satisfied by *tgbotapi.BotAPI
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot represents the Telegram bot application
type Bot struct {
	api    *tgbotapi.BotAPI
	out    sender
	plans  PlanService
	prefs  PreferenceStore
	cache  scheduler.StatsSource
	config *BotConfig
	admins map[int64]bool
	logger *slog.Logger
	now    func() time.Time
}

// New connects to Telegram. cache may be nil.
func New(token string, plans PlanService, prefs PreferenceStore, cache scheduler.StatsSource, cfg *BotConfig, logger *slog.Logger) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("unable to create bot: %v", err)
	}
	b := newBot(api, plans, prefs, cache, cfg, logger)
	b.api = api
	b.logger.Info("telegram bot authorized", "account", api.Self.UserName)
	return b, nil
}

func newBot(out sender, plans PlanService, prefs PreferenceStore, cache scheduler.StatsSource, cfg *BotConfig, logger *slog.Logger) *Bot {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[int64]bool, len(cfg.AdminUserIDs))
	for _, id := range cfg.AdminUserIDs {
		admins[id] = true
	}
	return &Bot{
		out:    out,
		plans:  plans,
		prefs:  prefs,
		cache:  cache,
		config: cfg,
		admins: admins,
		logger: logger,
		now:    time.Now,
	}
}

// Start polls for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return fmt.Errorf("bot is not connected")
	}
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

// handleUpdate handles incoming updates from Telegram
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	var err error
	switch {
	case update.Message != nil && update.Message.IsCommand():
		err = b.HandleCommand(ctx, update.Message)
	case update.Message != nil:
		err = b.reply(update.Message.Chat.ID, "I don't understand. Use /plan to see today's plan.")
	case update.CallbackQuery != nil:
		err = b.HandleCallback(ctx, update.CallbackQuery)
	}
	if err != nil {
		b.logger.Error("handling update failed", "update_id", update.UpdateID, "error", err)
	}
}

// SendReminder implements the scheduler.Notifier interface
func (b *Bot) SendReminder(ctx context.Context, prefs models.StudyPreferences, day *models.ScheduleDay) error {
	chatID := prefs.ChatID
	if chatID == 0 {
		// private chats share the user id
		chatID = prefs.UserID
	}
	open := 0
	for _, it := range day.Items {
		if !it.Completed {
			open++
		}
	}
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("⏰ You have %d study block(s) left today.\n\n%s", open, formatPlan(day)))
	if kb := planKeyboard(day); kb != nil {
		msg.ReplyMarkup = *kb
	}
	if _, err := b.out.Send(msg); err != nil {
		return fmt.Errorf("failed to send reminder to user %d: %v", prefs.UserID, err)
	}
	b.logger.Info("reminder sent", "user_id", prefs.UserID, "open_items", open)
	return nil
}

// isAdmin checks if a user is an admin
func (b *Bot) isAdmin(userID int64) bool {
	return b.admins[userID]
}

func (b *Bot) reply(chatID int64, text string) error {
	_, err := b.out.Send(tgbotapi.NewMessage(chatID, text))
	return err
}
