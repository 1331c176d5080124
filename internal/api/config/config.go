package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	setChatDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file not found: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

func setChatDefaults() {
	viper.SetDefault("chat.welcome_content", "Hi! An admin will reply to you shortly.")
	viper.SetDefault("chat.responder_delay_ms", 1000)
	viper.SetDefault("chat.presence_ttl_sec", 60)
	viper.SetDefault("chat.heartbeat_sec", 30)
	viper.SetDefault("chat.typing_ttl_sec", 5)
	viper.SetDefault("chat.max_text_length", 500)
	viper.SetDefault("chat.default_page_size", 20)
	viper.SetDefault("chat.max_page_size", 100)
	viper.SetDefault("chat.unread_audit_window_hour", 24)
	viper.SetDefault("jwt.expire_hour", 168)
}
