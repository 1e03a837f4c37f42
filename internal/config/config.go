package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/agentchat/internal/logger"
	"gopkg.in/yaml.v3"
)

// loadEnv читает .env только вне production (в контейнере/prod конфиг только из env).
func loadEnv() {
	if os.Getenv("APP_ENV") == "production" {
		return
	}
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for i := 0; i < 5; i++ {
		path := dir + "/.env"
		f, err := os.Open(path)
		if err == nil {
			loadEnvFrom(f)
			f.Close()
			return
		}
		parent := strings.TrimSuffix(dir, "/")
		if idx := strings.LastIndex(parent, "/"); idx <= 0 {
			return
		} else {
			dir = parent[:idx]
			if dir == "" {
				dir = "/"
			}
		}
	}
}

func loadEnvFrom(f *os.File) {
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if key == "" {
			continue
		}
		if len(val) >= 2 && (val[0] == '"' && val[len(val)-1] == '"' || val[0] == '\'' && val[len(val)-1] == '\'') {
			val = val[1 : len(val)-1]
		}
		if os.Getenv(key) == "" {
			os.Setenv(key, val)
		}
	}
}

// DatabaseConfig — настройки БД. Если URL пустой, сервер поднимает embedded PostgreSQL
// с данными в DataDir (database_path).
type DatabaseConfig struct {
	URL            string `yaml:"database_url"`
	DataDir        string `yaml:"database_path"`
	MaxConnections int    `yaml:"db_max_connections"`
}

// RateLimitConfig — лимиты по IP (sliding window, состояние процесс-локальное либо в Redis).
type RateLimitConfig struct {
	MessagesPerMinute int `yaml:"message_rate_per_minute"`
	RoomsPerHour      int `yaml:"room_rate_per_hour"`
	UploadsPerMinute  int `yaml:"file_rate_per_minute"`
}

// RedisConfig — опциональный Redis для разделяемого состояния rate limit / typing dedup.
// Пустой URL — всё хранится в памяти процесса.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// Config содержит настройки приложения, БД, шины событий и лимитов.
// Приоритет: переменные окружения > YAML-файл > значения по умолчанию.
type Config struct {
	// Сервер
	BindAddress  string        `yaml:"bind_address"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
	IdleTimeout  time.Duration `yaml:"-"`

	// База данных
	Database DatabaseConfig `yaml:"-"`

	// Файлы: метаданные в БД, содержимое в blob-каталоге (адресация по sha256).
	BlobDir      string `yaml:"blob_dir"`
	FileMaxBytes int64  `yaml:"-"`

	// Статика фронтенда; пустая строка или отсутствующий каталог — режим только API.
	StaticDir string `yaml:"static_dir"`

	// Шина событий / SSE
	RingCapacityPerRoom int           `yaml:"ring_capacity_per_room"`
	SubscriberBuffer    int           `yaml:"subscriber_buffer"`
	HeartbeatInterval   time.Duration `yaml:"-"`

	// Typing
	TypingTTL   time.Duration `yaml:"-"`
	TypingDedup time.Duration `yaml:"-"`

	// Retention
	RetentionInterval time.Duration `yaml:"-"`

	// Лимиты
	RateLimit RateLimitConfig `yaml:"-"`

	// Redis (опционально)
	Redis RedisConfig `yaml:"-"`

	// CORS
	CORSAllowedOrigins string `yaml:"cors_allowed_origins"`

	// Логирование
	LogLevel string `yaml:"log_level"`
}

// Addr возвращает адрес листенера вида host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.BindAddress, c.Port)
}

// DBMaxConnections возвращает максимальное число соединений в пуле.
func (c *Config) DBMaxConnections() int {
	if c.Database.MaxConnections <= 0 {
		return 20
	}
	return c.Database.MaxConnections
}

// yamlConfig — промежуточная структура для парсинга YAML (секунды и мегабайты в int).
type yamlConfig struct {
	BindAddress         string `yaml:"bind_address"`
	Port                int    `yaml:"port"`
	ReadTimeout         int    `yaml:"read_timeout"`
	WriteTimeout        int    `yaml:"write_timeout"`
	IdleTimeout         int    `yaml:"idle_timeout"`
	DatabaseURL         string `yaml:"database_url"`
	DatabasePath        string `yaml:"database_path"`
	DBMaxConnections    int    `yaml:"db_max_connections"`
	BlobDir             string `yaml:"blob_dir"`
	StaticDir           string `yaml:"static_dir"`
	FileMaxBytes        int64  `yaml:"file_max_bytes"`
	MessageRatePerMin   int    `yaml:"message_rate_per_minute"`
	RoomRatePerHour     int    `yaml:"room_rate_per_hour"`
	FileRatePerMin      int    `yaml:"file_rate_per_minute"`
	RingCapacityPerRoom int    `yaml:"ring_capacity_per_room"`
	SubscriberBuffer    int    `yaml:"subscriber_buffer"`
	HeartbeatSeconds    int    `yaml:"heartbeat_interval_seconds"`
	TypingTTLSeconds    int    `yaml:"typing_ttl_seconds"`
	TypingDedupSeconds  int    `yaml:"typing_dedup_seconds"`
	RetentionSeconds    int    `yaml:"retention_interval_seconds"`
	RedisURL            string `yaml:"redis_url"`
	CORSAllowedOrigins  string `yaml:"cors_allowed_origins"`
	LogLevel            string `yaml:"log_level"`
}

func defaults() yamlConfig {
	return yamlConfig{
		BindAddress:         "0.0.0.0",
		Port:                8080,
		ReadTimeout:         15,
		WriteTimeout:        0, // SSE: write timeout обрывает долгие стримы, поэтому 0
		IdleTimeout:         60,
		DatabasePath:        "./data/pg",
		DBMaxConnections:    20,
		BlobDir:             "./data/blobs",
		StaticDir:           "./frontend/dist",
		FileMaxBytes:        5 << 20,
		MessageRatePerMin:   60,
		RoomRatePerHour:     10,
		FileRatePerMin:      10,
		RingCapacityPerRoom: 256,
		SubscriberBuffer:    64,
		HeartbeatSeconds:    30,
		TypingTTLSeconds:    4,
		TypingDedupSeconds:  2,
		RetentionSeconds:    60,
		CORSAllowedOrigins:  "*",
		LogLevel:            "info",
	}
}

// Load загружает конфигурацию.
// Сначала подгружаются переменные из .env (если есть), затем YAML и env (env имеет приоритет).
func Load() *Config {
	loadEnv()
	yc := defaults()

	paths := []string{os.Getenv("CONFIG_PATH"), "config/server.yaml", "config/server.yaml.example"}
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, &yc); err != nil {
			logger.Errorf("config: ошибка парсинга %s: %v (используются значения по умолчанию)", path, err)
		} else {
			logger.Infof("config: загружен %s", path)
		}
		break
	}

	return fromYAML(yc)
}

// FromDefaults возвращает конфигурацию без чтения файлов и окружения (для тестов).
func FromDefaults() *Config {
	return buildConfig(defaults())
}

func fromYAML(yc yamlConfig) *Config {
	yc.BindAddress = envStr("BIND_ADDRESS", yc.BindAddress)
	yc.Port = envInt("PORT", yc.Port)
	yc.ReadTimeout = envInt("READ_TIMEOUT", yc.ReadTimeout)
	yc.WriteTimeout = envInt("WRITE_TIMEOUT", yc.WriteTimeout)
	yc.IdleTimeout = envInt("IDLE_TIMEOUT", yc.IdleTimeout)
	yc.DatabaseURL = envStr("DATABASE_URL", yc.DatabaseURL)
	yc.DatabasePath = envStr("DATABASE_PATH", yc.DatabasePath)
	yc.DBMaxConnections = envInt("DB_MAX_CONNECTIONS", yc.DBMaxConnections)
	yc.BlobDir = envStr("BLOB_DIR", yc.BlobDir)
	yc.StaticDir = envStr("STATIC_DIR", yc.StaticDir)
	yc.FileMaxBytes = int64(envInt("FILE_MAX_BYTES", int(yc.FileMaxBytes)))
	yc.MessageRatePerMin = envInt("MESSAGE_RATE_PER_MINUTE", yc.MessageRatePerMin)
	yc.RoomRatePerHour = envInt("ROOM_RATE_PER_HOUR", yc.RoomRatePerHour)
	yc.FileRatePerMin = envInt("FILE_RATE_PER_MINUTE", yc.FileRatePerMin)
	yc.RingCapacityPerRoom = envInt("RING_CAPACITY_PER_ROOM", yc.RingCapacityPerRoom)
	yc.SubscriberBuffer = envInt("SUBSCRIBER_BUFFER", yc.SubscriberBuffer)
	yc.HeartbeatSeconds = envInt("HEARTBEAT_INTERVAL_SECONDS", yc.HeartbeatSeconds)
	yc.TypingTTLSeconds = envInt("TYPING_TTL_SECONDS", yc.TypingTTLSeconds)
	yc.TypingDedupSeconds = envInt("TYPING_DEDUP_SECONDS", yc.TypingDedupSeconds)
	yc.RetentionSeconds = envInt("RETENTION_INTERVAL_SECONDS", yc.RetentionSeconds)
	yc.RedisURL = envStr("REDIS_URL", yc.RedisURL)
	yc.CORSAllowedOrigins = envStr("CORS_ALLOWED_ORIGINS", yc.CORSAllowedOrigins)
	yc.LogLevel = envStr("LOG_LEVEL", yc.LogLevel)

	cfg := buildConfig(yc)

	if os.Getenv("APP_ENV") == "production" {
		if cfg.CORSAllowedOrigins == "" || cfg.CORSAllowedOrigins == "*" {
			logger.Errorf("config: в production задайте CORS_ALLOWED_ORIGINS (явный список origins, не *)")
		}
	}
	return cfg
}

func buildConfig(yc yamlConfig) *Config {
	d := defaults()
	if yc.Port <= 0 {
		yc.Port = d.Port
	}
	if yc.FileMaxBytes <= 0 {
		yc.FileMaxBytes = d.FileMaxBytes
	}
	if yc.MessageRatePerMin <= 0 {
		yc.MessageRatePerMin = d.MessageRatePerMin
	}
	if yc.RoomRatePerHour <= 0 {
		yc.RoomRatePerHour = d.RoomRatePerHour
	}
	if yc.FileRatePerMin <= 0 {
		yc.FileRatePerMin = d.FileRatePerMin
	}
	if yc.RingCapacityPerRoom <= 0 {
		yc.RingCapacityPerRoom = d.RingCapacityPerRoom
	}
	if yc.SubscriberBuffer <= 0 {
		yc.SubscriberBuffer = d.SubscriberBuffer
	}
	if yc.HeartbeatSeconds <= 0 {
		yc.HeartbeatSeconds = d.HeartbeatSeconds
	}
	if yc.TypingTTLSeconds <= 0 {
		yc.TypingTTLSeconds = d.TypingTTLSeconds
	}
	if yc.TypingDedupSeconds <= 0 {
		yc.TypingDedupSeconds = d.TypingDedupSeconds
	}
	if yc.RetentionSeconds <= 0 {
		yc.RetentionSeconds = d.RetentionSeconds
	}

	return &Config{
		BindAddress:  yc.BindAddress,
		Port:         yc.Port,
		ReadTimeout:  time.Duration(yc.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(yc.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(yc.IdleTimeout) * time.Second,
		Database: DatabaseConfig{
			URL:            yc.DatabaseURL,
			DataDir:        yc.DatabasePath,
			MaxConnections: yc.DBMaxConnections,
		},
		BlobDir:             yc.BlobDir,
		FileMaxBytes:        yc.FileMaxBytes,
		StaticDir:           yc.StaticDir,
		RingCapacityPerRoom: yc.RingCapacityPerRoom,
		SubscriberBuffer:    yc.SubscriberBuffer,
		HeartbeatInterval:   time.Duration(yc.HeartbeatSeconds) * time.Second,
		TypingTTL:           time.Duration(yc.TypingTTLSeconds) * time.Second,
		TypingDedup:         time.Duration(yc.TypingDedupSeconds) * time.Second,
		RetentionInterval:   time.Duration(yc.RetentionSeconds) * time.Second,
		RateLimit: RateLimitConfig{
			MessagesPerMinute: yc.MessageRatePerMin,
			RoomsPerHour:      yc.RoomRatePerHour,
			UploadsPerMinute:  yc.FileRatePerMin,
		},
		Redis:              RedisConfig{URL: yc.RedisURL},
		CORSAllowedOrigins: yc.CORSAllowedOrigins,
		LogLevel:           yc.LogLevel,
	}
}

// envStr возвращает значение переменной окружения или fallback.
func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt возвращает числовое значение переменной окружения или fallback.
func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
