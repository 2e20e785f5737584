package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"signal_bot/internal/models"
)

const (
	configFilePathENV = "CONFIG_FILE"
	tokenTelegramENV  = "TELEGRAM_TOKEN"
	databaseDSN       = "DATABASE_DSN"
)

type MarketConfig struct {
	RESTURL string `yaml:"rest_url"`
	WSURL   string `yaml:"ws_url"`
	// только из env: yaml.v2 не умеет парсить "10s" в Duration
	RequestTimeout time.Duration `yaml:"-"`
}

// Config ...
type Config struct {
	Telegram struct {
		Token  string `yaml:"token"`
		ChatID int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	DB      string `yaml:"db_dsn"`
	Service struct {
		Host      string `yaml:"host"`
		AdminPort int    `yaml:"admin_port"`
	} `yaml:"service"`
	Jaeger struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"jaeger"`
	Debug bool `yaml:"debug"`

	// за чем следим
	Symbols    []string `yaml:"symbols"`
	Timeframes []string `yaml:"timeframes"`

	Market MarketConfig `yaml:"market"`

	// окна и прогрев
	WindowSize     int `yaml:"window_size"`
	StartupCandles int `yaml:"startup_candles"`
	MinCandles     int `yaml:"min_candles"`

	// фьюзер
	MinConfidence         float64 `yaml:"min_confidence"`
	CooldownSeconds       int     `yaml:"cooldown_seconds"`
	PreventConflicts      bool    `yaml:"prevent_conflicts"`
	ConflictWindowSeconds int     `yaml:"conflict_window_seconds"`
	ATRSLMult             float64 `yaml:"atr_sl_mult"`
	ATRTPMult             float64 `yaml:"atr_tp_mult"`

	EnableWyckoff bool `yaml:"enable_wyckoff"`
	EnableElliott bool `yaml:"enable_elliott"`
	EnableRSI     bool `yaml:"enable_rsi"`
	EnableMACD    bool `yaml:"enable_macd"`

	// нотифайер, только из env
	NotifyTimeout time.Duration `yaml:"-"`
}

func NewConfig() (*Config, error) {
	configFileName := os.Getenv(configFilePathENV)
	if configFileName == "" {
		configFileName = "values_local.yaml"
	}
	file, err := os.Open("configs/" + configFileName)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	config := Config{
		Symbols:    []string{"BTCUSDT"},
		Timeframes: []string{"15m", "1h", "4h"},

		Market: MarketConfig{
			RESTURL:        getenvDefault("BINANCE_REST_URL", "https://fapi.binance.com"),
			WSURL:          getenvDefault("BINANCE_WS_URL", "wss://fstream.binance.com"),
			RequestTimeout: durationFromEnv("MARKET_REQUEST_TIMEOUT", "10s"),
		},

		WindowSize:     intFromEnv("WINDOW_SIZE", 500),
		StartupCandles: intFromEnv("STARTUP_CANDLES", 500),
		MinCandles:     intFromEnv("MIN_CANDLES", 100),

		MinConfidence:         floatFromEnv("MIN_CONFIDENCE", 0.55),
		CooldownSeconds:       intFromEnv("COOLDOWN_SECONDS", 300),
		PreventConflicts:      boolFromEnv("PREVENT_CONFLICTS", true),
		ConflictWindowSeconds: intFromEnv("CONFLICT_WINDOW_SECONDS", 3600),
		ATRSLMult:             floatFromEnv("ATR_SL_MULT", 2.0),
		ATRTPMult:             floatFromEnv("ATR_TP_MULT", 3.0),

		EnableWyckoff: boolFromEnv("ENABLE_WYCKOFF", true),
		EnableElliott: boolFromEnv("ENABLE_ELLIOTT", true),
		EnableRSI:     boolFromEnv("ENABLE_RSI", true),
		EnableMACD:    boolFromEnv("ENABLE_MACD", true),

		NotifyTimeout: durationFromEnv("NOTIFY_TIMEOUT", "5s"),
	}

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("decode config file: %w", err)
	}

	token := os.Getenv(tokenTelegramENV)
	if token != "" {
		config.Telegram.Token = token
	}

	dsn := os.Getenv(databaseDSN)
	if dsn != "" {
		config.DB = dsn
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate — кривой конфиг валит процесс на старте с внятной ошибкой.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config: symbols пуст")
	}
	for _, s := range c.Symbols {
		if s != strings.ToUpper(s) || !strings.HasSuffix(s, "USDT") {
			return fmt.Errorf("config: символ %q должен быть верхним регистром и котироваться в USDT", s)
		}
	}
	if len(c.Timeframes) == 0 {
		return fmt.Errorf("config: timeframes пуст")
	}
	for _, tf := range c.Timeframes {
		if !models.ValidTimeframe(tf) {
			return fmt.Errorf("config: неизвестный таймфрейм %q", tf)
		}
	}
	if n := len(c.Symbols) * len(c.Timeframes); n > 200 {
		return fmt.Errorf("config: %d стримов, лимит одного соединения 200", n)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("config: min_confidence %v вне [0,1]", c.MinConfidence)
	}
	if c.WindowSize <= 0 || c.MinCandles <= 0 {
		return fmt.Errorf("config: window_size и min_candles должны быть > 0")
	}
	if c.MinCandles > c.WindowSize {
		return fmt.Errorf("config: min_candles %d больше window_size %d", c.MinCandles, c.WindowSize)
	}
	if c.StartupCandles > 1500 {
		return fmt.Errorf("config: startup_candles %d, история отдаёт максимум 1500", c.StartupCandles)
	}
	if c.DB == "" {
		return fmt.Errorf("config: пустой db_dsn (или DATABASE_DSN)")
	}
	return nil
}

func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

func (c *Config) ConflictWindow() time.Duration {
	return time.Duration(c.ConflictWindowSeconds) * time.Second
}

func intFromEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func floatFromEnv(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolFromEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "1" || v == "true" || v == "TRUE" {
			return true
		}
		if v == "0" || v == "false" || v == "FALSE" {
			return false
		}
	}
	return def
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationFromEnv(key, def string) time.Duration {
	val := getenvDefault(key, def)
	d, err := time.ParseDuration(val)
	if err != nil {
		d, _ = time.ParseDuration(def)
	}
	return d
}
