package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
		Env  string `yaml:"env"`
	} `yaml:"server"`

	Database struct {
		DSN string `yaml:"url"`
	} `yaml:"database"`

	JWT struct {
		Secret string `yaml:"secret"`
		TTL    int    `yaml:"ttl"` // minutes
	} `yaml:"jwt"`

	Email struct {
		SMTPHost     string `yaml:"smtp_host"`
		SMTPPort     int    `yaml:"smtp_port"`
		SMTPUsername string `yaml:"smtp_user"`
		SMTPPassword string `yaml:"smtp_password"`
		FromEmail    string `yaml:"from_email"`
		FromName     string `yaml:"from_name"`
		Enabled      bool   `yaml:"enabled"`
	} `yaml:"email"`

	Storage struct {
		Type      string `yaml:"type"`       // local, cloudflare_r2
		BasePath  string `yaml:"base_path"`  // local storage root
		BaseURL   string `yaml:"base_url"`   // public URL base
		Bucket    string `yaml:"bucket"`     // R2
		AccessKey string `yaml:"access_key"` // R2
		SecretKey string `yaml:"secret_key"` // R2
		Endpoint  string `yaml:"endpoint"`   // R2
	} `yaml:"storage"`

	Chat ChatConfig `yaml:"chat"`
}

// ChatConfig carries the policy knobs of the conversation core.
type ChatConfig struct {
	EditWindowMinutes   int   `yaml:"edit_window_minutes"`
	PinLimit            int   `yaml:"pin_limit"`
	MaxBodyLength       int   `yaml:"max_body_length"`
	MaxAttachments      int   `yaml:"max_attachments"`
	MaxAttachmentSize   int64 `yaml:"max_attachment_size"` // bytes
	AllowAttachmentOnly bool  `yaml:"allow_attachment_only"`

	AIResponder struct {
		Enabled        bool   `yaml:"enabled"`
		Endpoint       string `yaml:"endpoint"`
		BotUserID      string `yaml:"bot_user_id"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"ai_responder"`
}

// EditWindow returns the edit window as a duration.
func (c ChatConfig) EditWindow() time.Duration {
	return time.Duration(c.EditWindowMinutes) * time.Minute
}

var AppConfig *Config

// LoadConfig reads config.yaml, or falls back to environment variables when
// DATABASE_URL is set (test and container deployments). A .env file is
// loaded first when present.
func LoadConfig() {
	_ = godotenv.Load()

	var cfg Config

	dbURL := os.Getenv("DATABASE_URL")

	if dbURL == "" {
		configPath := os.Getenv("CONFIG_PATH")
		if configPath == "" {
			configPath = "config/config.yaml"
		}

		f, err := os.Open(configPath)
		if err != nil {
			log.Fatalf("Failed to open config file at %s: %v", configPath, err)
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(&cfg); err != nil {
			log.Fatalf("Failed to parse config file at %s: %v", configPath, err)
		}

		cfg.applyChatDefaults()
		AppConfig = &cfg
		return
	}

	cfg.Database.DSN = dbURL
	cfg.Server.Env = os.Getenv("SERVER_ENV")
	cfg.Server.Port, _ = strconv.Atoi(os.Getenv("SERVER_PORT"))
	cfg.JWT.Secret = os.Getenv("JWT_SECRET")
	cfg.JWT.TTL = 60

	cfg.Storage.Type = "local"
	cfg.Storage.BasePath = "./uploads"
	cfg.Storage.BaseURL = "/api/v1/files"

	cfg.applyChatDefaults()
	AppConfig = &cfg
}

func (c *Config) applyChatDefaults() {
	if c.Chat.EditWindowMinutes == 0 {
		c.Chat.EditWindowMinutes = 15
	}
	if c.Chat.PinLimit == 0 {
		c.Chat.PinLimit = 3
	}
	if c.Chat.MaxBodyLength == 0 {
		c.Chat.MaxBodyLength = 5000
	}
	if c.Chat.MaxAttachments == 0 {
		c.Chat.MaxAttachments = 10
	}
	if c.Chat.MaxAttachmentSize == 0 {
		c.Chat.MaxAttachmentSize = 25 * 1024 * 1024 // 25MB
	}
	if c.Chat.AIResponder.TimeoutSeconds == 0 {
		c.Chat.AIResponder.TimeoutSeconds = 20
	}
	if c.Chat.AIResponder.BotUserID == "" {
		c.Chat.AIResponder.BotUserID = "ai-assistant"
	}
}

// DefaultChatConfig returns the production defaults; used by tests and by
// callers that construct the chat service without a full config file.
func DefaultChatConfig() ChatConfig {
	var c Config
	c.applyChatDefaults()
	return c.Chat
}

func GetConfig() *Config {
	if AppConfig == nil {
		LoadConfig()
	}
	return AppConfig
}
