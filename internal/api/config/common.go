package config

// Config 配置主体
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Logstash LogstashConfig `mapstructure:"logstash"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Chat     ChatConfig     `mapstructure:"chat"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// DBConfig 数据库配置
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	MaxIdle     int    `mapstructure:"max_idle"`
	MaxOpen     int    `mapstructure:"max_open"`
	MaxLifetime int    `mapstructure:"max_lifetime"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MongoConfig Mongo配置
type MongoConfig struct {
	URL      string `mapstructure:"url"`
	Database string `mapstructure:"database"`
}

// LogstashConfig 日志上报配置
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	ExpireHour int    `mapstructure:"expire_hour"`
}

// ChatConfig 聊天核心配置
type ChatConfig struct {
	WelcomeContent    string `mapstructure:"welcome_content"`
	ResponderDelayMs  int    `mapstructure:"responder_delay_ms"`
	PresenceTTLSec    int    `mapstructure:"presence_ttl_sec"`
	HeartbeatSec      int    `mapstructure:"heartbeat_sec"`
	TypingTTLSec      int    `mapstructure:"typing_ttl_sec"`
	MaxTextLength     int    `mapstructure:"max_text_length"`
	DefaultPageSize   int    `mapstructure:"default_page_size"`
	MaxPageSize       int    `mapstructure:"max_page_size"`
	UnreadAuditWindow int    `mapstructure:"unread_audit_window_hour"`
}
