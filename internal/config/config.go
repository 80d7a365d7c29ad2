package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config содержит все настройки приложения
type Config struct {
	Telegram TelegramConfig
	Kite     KiteConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	AI       AIConfig
	Engine   EngineConfig
	HTTP     HTTPConfig
	LogLevel string

	ThresholdsPath string
	PolicyPath     string
}

type TelegramConfig struct {
	BotToken     string
	ChatID       int64
	Commands     bool    // принимать команды /status, /breakers, /recheck
	AllowedUsers []int64 // пусто: только ChatID
	AdminIDs     []int64
}

// Enabled уведомления в Telegram настроены
func (c TelegramConfig) Enabled() bool {
	return c.BotToken != "" && c.ChatID != 0
}

type KiteConfig struct {
	APIKey           string
	AccessToken      string
	BaseURL          string
	InstrumentTokens map[string]string
	RequestsPerSec   float64
	Timeout          time.Duration
}

type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Enabled журнал в Postgres включен
func (c DatabaseConfig) Enabled() bool {
	return c.Host != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled общее состояние correlation brake хранится в Redis
func (c RedisConfig) Enabled() bool {
	return c.Addr != ""
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled поток событий в Kafka включен
func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0 && c.Topic != ""
}

type AIConfig struct {
	Enabled bool
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type EngineConfig struct {
	Instruments       []string
	PollInterval      time.Duration
	HistoryDays       int
	Interval          string
	Capital           float64
	RiskPerTrade      float64
	CorrelatedGroups  [][]string
	SignalSource      string
	MaxFeedBackoff    time.Duration
	FeedRetryAttempts int
}

// Источники сигналов
const (
	SignalSourceModeF   = "mode_f"  // opening impulse, затем MODE_F
	SignalSourceOpening = "opening" // только opening impulse
	SignalSourceNone    = "none"    // сигналы не генерируются
)

type HTTPConfig struct {
	Addr string
}

// Load загружает конфигурацию из .env файла
func Load() (*Config, error) {
	config, err := load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadOffline загружает конфигурацию для replay: ключи Kite не требуются
func LoadOffline() (*Config, error) {
	config, err := load()
	if err != nil {
		return nil, err
	}
	if err := config.validateEngine(); err != nil {
		return nil, err
	}
	return config, nil
}

func load() (*Config, error) {
	// Загружаем .env файл (если есть)
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	chatID, err := strconv.ParseInt(getEnv("TELEGRAM_CHAT_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
	}

	tgCommands, err := strconv.ParseBool(getEnv("TELEGRAM_COMMANDS_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_COMMANDS_ENABLED: %w", err)
	}

	tgUsers, err := parseIDs(getEnv("TELEGRAM_ALLOWED_USERS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USERS: %w", err)
	}

	tgAdmins, err := parseIDs(getEnv("TELEGRAM_ADMIN_IDS", ""))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ADMIN_IDS: %w", err)
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxOpenConns, err := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_OPEN_CONNS: %w", err)
	}

	maxIdleConns, err := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_MAX_IDLE_CONNS: %w", err)
	}

	connMaxLifetime, err := time.ParseDuration(getEnv("DB_CONN_MAX_LIFETIME", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_CONN_MAX_LIFETIME: %w", err)
	}

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	kiteRPS, err := strconv.ParseFloat(getEnv("KITE_REQUESTS_PER_SEC", "3"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid KITE_REQUESTS_PER_SEC: %w", err)
	}

	kiteTimeout, err := time.ParseDuration(getEnv("KITE_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid KITE_TIMEOUT: %w", err)
	}

	aiEnabled, err := strconv.ParseBool(getEnv("AI_FILTER_ENABLED", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid AI_FILTER_ENABLED: %w", err)
	}

	aiTimeout, err := time.ParseDuration(getEnv("AI_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid AI_TIMEOUT: %w", err)
	}

	pollInterval, err := time.ParseDuration(getEnv("POLL_INTERVAL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}

	historyDays, err := strconv.Atoi(getEnv("HISTORY_DAYS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid HISTORY_DAYS: %w", err)
	}

	capital, err := strconv.ParseFloat(getEnv("CAPITAL", "100000"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPITAL: %w", err)
	}

	riskPerTrade, err := strconv.ParseFloat(getEnv("RISK_PER_TRADE", "0.01"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid RISK_PER_TRADE: %w", err)
	}

	maxBackoff, err := time.ParseDuration(getEnv("FEED_MAX_BACKOFF", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_MAX_BACKOFF: %w", err)
	}

	feedRetries, err := strconv.Atoi(getEnv("FEED_RETRY_ATTEMPTS", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid FEED_RETRY_ATTEMPTS: %w", err)
	}

	instruments := splitList(getEnv("INSTRUMENTS", "NIFTY,SENSEX"))

	config := &Config{
		Telegram: TelegramConfig{
			BotToken:     getEnv("TELEGRAM_BOT_TOKEN", ""),
			ChatID:       chatID,
			Commands:     tgCommands,
			AllowedUsers: tgUsers,
			AdminIDs:     tgAdmins,
		},
		Kite: KiteConfig{
			APIKey:      getEnv("KITE_API_KEY", ""),
			AccessToken: getEnv("KITE_ACCESS_TOKEN", ""),
			BaseURL:     getEnv("KITE_BASE_URL", "https://api.kite.trade"),
			InstrumentTokens: parsePairs(getEnv("KITE_INSTRUMENT_TOKENS",
				"NIFTY=256265,SENSEX=265")),
			RequestsPerSec: kiteRPS,
			Timeout:        kiteTimeout,
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", ""),
			Port:            dbPort,
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			DBName:          getEnv("DB_NAME", "rijin"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    maxOpenConns,
			MaxIdleConns:    maxIdleConns,
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getEnv("KAFKA_BROKERS", "")),
			Topic:   getEnv("KAFKA_TOPIC", "rijin.events"),
		},
		AI: AIConfig{
			Enabled: aiEnabled,
			APIKey:  getEnv("AI_API_KEY", ""),
			BaseURL: getEnv("AI_BASE_URL", "https://api.groq.com/openai/v1"),
			Model:   getEnv("AI_MODEL", "llama-3.3-70b-versatile"),
			Timeout: aiTimeout,
		},
		Engine: EngineConfig{
			Instruments:       instruments,
			PollInterval:      pollInterval,
			HistoryDays:       historyDays,
			Interval:          getEnv("BAR_INTERVAL", "5minute"),
			Capital:           capital,
			RiskPerTrade:      riskPerTrade,
			CorrelatedGroups:  parseGroups(getEnv("CORRELATED_GROUPS", "NIFTY|SENSEX")),
			SignalSource:      getEnv("SIGNAL_SOURCE", SignalSourceModeF),
			MaxFeedBackoff:    maxBackoff,
			FeedRetryAttempts: feedRetries,
		},
		HTTP: HTTPConfig{
			Addr: getEnv("HTTP_ADDR", ":8080"),
		},
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ThresholdsPath: getEnv("THRESHOLDS_PATH", "configs/thresholds.yaml"),
		PolicyPath:     getEnv("POLICY_PATH", "configs/policy.yaml"),
	}

	return config, nil
}

// Validate проверяет обязательные поля конфигурации
func (c *Config) Validate() error {
	if c.Kite.APIKey == "" {
		return fmt.Errorf("KITE_API_KEY is required")
	}
	if c.Kite.AccessToken == "" {
		return fmt.Errorf("KITE_ACCESS_TOKEN is required")
	}
	for _, instrument := range c.Engine.Instruments {
		if _, ok := c.Kite.InstrumentTokens[instrument]; !ok {
			return fmt.Errorf("KITE_INSTRUMENT_TOKENS has no token for %s", instrument)
		}
	}
	return c.validateEngine()
}

func (c *Config) validateEngine() error {
	if len(c.Engine.Instruments) == 0 {
		return fmt.Errorf("INSTRUMENTS must list at least one instrument")
	}
	if c.Engine.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive")
	}
	switch c.Engine.SignalSource {
	case SignalSourceModeF, SignalSourceOpening, SignalSourceNone:
	default:
		return fmt.Errorf("SIGNAL_SOURCE must be one of %s, %s, %s", SignalSourceModeF, SignalSourceOpening, SignalSourceNone)
	}
	if c.Engine.Capital <= 0 {
		return fmt.Errorf("CAPITAL must be positive")
	}
	if c.Engine.RiskPerTrade <= 0 || c.Engine.RiskPerTrade > 0.1 {
		return fmt.Errorf("RISK_PER_TRADE must be in (0, 0.1]")
	}
	if c.Database.Enabled() && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when DB_HOST is set")
	}
	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("AI_API_KEY is required when AI_FILTER_ENABLED=true")
	}
	return nil
}

// DSN строка подключения lib/pq
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseIDs разбирает "123,456"
func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, item := range splitList(s) {
		id, err := strconv.ParseInt(item, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// parsePairs разбирает "A=1,B=2"
func parsePairs(s string) map[string]string {
	out := make(map[string]string)
	for _, item := range splitList(s) {
		key, value, ok := strings.Cut(item, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// parseGroups разбирает "NIFTY|SENSEX;BANKNIFTY|FINNIFTY"
func parseGroups(s string) [][]string {
	var groups [][]string
	for _, raw := range strings.Split(s, ";") {
		var group []string
		for _, name := range strings.Split(raw, "|") {
			if name = strings.TrimSpace(name); name != "" {
				group = append(group, name)
			}
		}
		if len(group) > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}
