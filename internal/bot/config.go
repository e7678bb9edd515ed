package bot

// BotConfig represents the configuration for the bot
type BotConfig struct {
	// Daily study budget for users who never set one
	DefaultMinutes int
	// Days planned ahead on /start and /budget
	PlanDays int
	// Reminder hour (UTC) for new users
	NotificationHour int
	// Telegram users allowed to run /stats
	AdminUserIDs []int64
}

// DefaultConfig returns the default bot configuration
func DefaultConfig() *BotConfig {
	return &BotConfig{
		DefaultMinutes:   120,
		PlanDays:         7,
		NotificationHour: 9,
	}
}
