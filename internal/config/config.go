package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	TelegramToken    string        `mapstructure:"telegram_token"`
	BotHandleTimeout time.Duration `mapstructure:"bot_handle_timeout"`
	ListenAddress    string        `mapstructure:"listen_address"`

	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`

	YooKassaShopID    string `mapstructure:"yookassa_shop_id"`
	YooKassaSecretKey string `mapstructure:"yookassa_secret_key"`

	AdminChatIDs    string `mapstructure:"admin_chat_ids"`
	ManagerUsername string `mapstructure:"manager_username"`
	ChatInviteLink  string `mapstructure:"chat_invite_link"`

	ConsentRequired bool `mapstructure:"consent_required"`

	CacheTTL            time.Duration `mapstructure:"cache_ttl"`
	FinalSendInterval   time.Duration `mapstructure:"final_send_interval"`
	ReminderInterval    time.Duration `mapstructure:"reminder_interval"`
	ReminderInactiveFor time.Duration `mapstructure:"reminder_inactive_for"`
	ReminderCooldown    time.Duration `mapstructure:"reminder_cooldown"`

	PostgresDSN string `mapstructure:"postgres_dsn"`
}

func New() *Config {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		logrus.Fatalf("unmarshalling config: %v", err)
	}
	return cfg
}

// AdminIDs parses the comma-separated admin chat id list.
func (c *Config) AdminIDs() []int64 {
	var ids []int64
	for _, part := range strings.Split(c.AdminChatIDs, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (c *Config) IsAdmin(chatID int64) bool {
	for _, id := range c.AdminIDs() {
		if id == chatID {
			return true
		}
	}
	return false
}

func SetupCommon() {
	viper.SetDefault("bot_handle_timeout", "90s")
	viper.SetDefault("listen_address", ":8080")
	viper.SetDefault("openai_model", "gpt-4o-mini")
	viper.SetDefault("manager_username", "krisis_pr")
	viper.SetDefault("cache_ttl", "5m")
	viper.SetDefault("final_send_interval", "2m")
	viper.SetDefault("reminder_interval", "15m")
	viper.SetDefault("reminder_inactive_for", "24h")
	viper.SetDefault("reminder_cooldown", "48h")
	viper.SetEnvPrefix("CAMPBOT")

	viper.MustBindEnv("telegram_token")
	viper.MustBindEnv("openai_api_key")
	viper.MustBindEnv("postgres_dsn")
	viper.MustBindEnv("yookassa_shop_id")
	viper.MustBindEnv("yookassa_secret_key")
	viper.MustBindEnv("admin_chat_ids")
	viper.MustBindEnv("chat_invite_link")
	viper.MustBindEnv("consent_required")
	viper.AutomaticEnv()
}
