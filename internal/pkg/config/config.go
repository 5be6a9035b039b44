// Package config предоставляет управление конфигурацией приложения
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Server содержит конфигурацию HTTP-сервера
type Server struct {
	Host                   string `json:"host" yaml:"host"`
	Port                   int    `json:"port" yaml:"port"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds" yaml:"shutdown_timeout_seconds"`
}

// Database содержит конфигурацию хранилища
type Database struct {
	Path string `json:"path" yaml:"path"`
}

// Telegram содержит конфигурацию работы с Telegram API
type Telegram struct {
	// DebugLogging включает передачу логгера zap в клиент gotd.
	DebugLogging bool `json:"debug_logging" yaml:"debug_logging"`
	// ConnectTimeoutSeconds — время ожидания установления транспорта.
	ConnectTimeoutSeconds int `json:"connect_timeout_seconds" yaml:"connect_timeout_seconds"`
}

// Jobs содержит настройки пайплайнов по умолчанию
type Jobs struct {
	// InviteDelaySeconds — задержка между инвайтами, если запрос её не задал.
	InviteDelaySeconds int `json:"invite_delay_seconds" yaml:"invite_delay_seconds"`
	// ParsePageSize — размер страницы пагинации участников (не более 100).
	ParsePageSize int `json:"parse_page_size" yaml:"parse_page_size"`
	// RecentDays — окно «недавней активности» для фильтра парсинга.
	RecentDays int `json:"recent_days" yaml:"recent_days"`
	// RunTTLHours — время хранения завершённых запусков в реестре.
	RunTTLHours int `json:"run_ttl_hours" yaml:"run_ttl_hours"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level string `json:"level" yaml:"level"` // debug, info, warn, error
	// MaskPhones включает маскировку номеров телефонов в логах.
	MaskPhones bool `json:"mask_phones" yaml:"mask_phones"`
}

// Config содержит конфигурацию приложения
type Config struct {
	Server   Server   `json:"server" yaml:"server"`
	Database Database `json:"database" yaml:"database"`
	Telegram Telegram `json:"telegram" yaml:"telegram"`
	Jobs     Jobs     `json:"jobs" yaml:"jobs"`
	Logging  Logging  `json:"logging" yaml:"logging"`
}

// LoadConfig загружает конфигурацию приложения из config.yml, переменных окружения или .env файла
func LoadConfig() (*Config, error) {
	// Загрузка переменных окружения из .env файла, если он существует
	if err := godotenv.Load(); err != nil {
		// Отсутствие .env — это нормально, полагаемся на окружение или config.yml
	}

	cfg, err := loadFromYAML("config.yml")
	if err != nil {
		cfg, err = loadFromEnv()
		if err != nil {
			return nil, fmt.Errorf("не удалось загрузить конфигурацию из env: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// loadFromYAML загружает конфигурацию из YAML-файла
func loadFromYAML(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}

	return &cfg, nil
}

// loadFromEnv загружает конфигурацию из переменных окружения
func loadFromEnv() (*Config, error) {
	host := getEnv("SERVER_HOST", DefaultServerHost)
	portStr := getEnv("SERVER_PORT", strconv.Itoa(DefaultServerPort))
	dbPath := getEnv("DATABASE_PATH", DefaultDatabasePath)
	delayStr := getEnv("INVITE_DELAY_SECONDS", strconv.Itoa(DefaultInviteDelaySeconds))
	levelStr := getEnv("LOG_LEVEL", DefaultLogLevel)

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("недопустимый SERVER_PORT: %w", err)
	}

	delay, err := strconv.Atoi(delayStr)
	if err != nil {
		return nil, fmt.Errorf("недопустимый INVITE_DELAY_SECONDS: %w", err)
	}

	return &Config{
		Server: Server{
			Host: host,
			Port: port,
		},
		Database: Database{
			Path: dbPath,
		},
		Jobs: Jobs{
			InviteDelaySeconds: delay,
		},
		Logging: Logging{
			Level:      levelStr,
			MaskPhones: true,
		},
	}, nil
}

// applyDefaults заполняет не заданные в источнике поля значениями по умолчанию.
func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ShutdownTimeoutSeconds == 0 {
		c.Server.ShutdownTimeoutSeconds = DefaultShutdownTimeoutSeconds
	}
	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}
	if c.Telegram.ConnectTimeoutSeconds == 0 {
		c.Telegram.ConnectTimeoutSeconds = DefaultConnectTimeoutSeconds
	}
	if c.Jobs.InviteDelaySeconds == 0 {
		c.Jobs.InviteDelaySeconds = DefaultInviteDelaySeconds
	}
	if c.Jobs.ParsePageSize == 0 {
		c.Jobs.ParsePageSize = DefaultParsePageSize
	}
	if c.Jobs.RecentDays == 0 {
		c.Jobs.RecentDays = DefaultRecentDays
	}
	if c.Jobs.RunTTLHours == 0 {
		c.Jobs.RunTTLHours = DefaultRunTTLHours
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}

	if c.Server.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("server.shutdown_timeout_seconds должно быть положительным")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path не может быть пустым")
	}

	if c.Jobs.InviteDelaySeconds < 0 {
		return fmt.Errorf("jobs.invite_delay_seconds должно быть неотрицательным")
	}

	if c.Jobs.ParsePageSize <= 0 || c.Jobs.ParsePageSize > 100 {
		return fmt.Errorf("jobs.parse_page_size должно быть в диапазоне 1-100")
	}

	if c.Jobs.RecentDays <= 0 {
		return fmt.Errorf("jobs.recent_days должно быть положительным")
	}

	if c.Jobs.RunTTLHours <= 0 {
		return fmt.Errorf("jobs.run_ttl_hours должно быть положительным")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}

	return nil
}

// getEnv извлекает значение переменной окружения или возвращает значение по умолчанию, если она не установлена
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
