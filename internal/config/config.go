package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Config — настройки сервиса из переменных окружения
type Config struct {
	ServerAddress string
	PostgresConn  string

	JWTSecret       string
	TokenTTLMinutes int

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	EmailSender  string

	UploadDir string

	InvitationBatchSize int
	BaseCurrency        string
	// CurrencyRates — курс валюты к базовой, например "EUR=1.08,ZMW=0.037".
	// Пустая карта означает, что конвертация не настроена.
	CurrencyRates map[string]decimal.Decimal
}

func Load() (Config, error) {
	cfg := Config{
		ServerAddress:       getEnv("SERVER_ADDRESS", "0.0.0.0:8080"),
		PostgresConn:        os.Getenv("POSTGRES_CONN"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		TokenTTLMinutes:     getEnvInt("TOKEN_TTL_MINUTES", 60),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            getEnvInt("SMTP_PORT", 587),
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		EmailSender:         getEnv("EMAIL_SENDER", "noreply@procurahub.local"),
		UploadDir:           getEnv("UPLOAD_DIR", "./uploads"),
		InvitationBatchSize: getEnvInt("INVITATION_BATCH_SIZE", 25),
		BaseCurrency:        getEnv("BASE_CURRENCY", "USD"),
	}

	if cfg.PostgresConn == "" {
		return Config{}, fmt.Errorf("POSTGRES_CONN env variable is not set")
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET env variable is not set")
	}

	rates, err := parseCurrencyRates(os.Getenv("CURRENCY_RATES"))
	if err != nil {
		return Config{}, err
	}
	cfg.CurrencyRates = rates

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// parseCurrencyRates разбирает строку вида "EUR=1.08,ZMW=0.037"
func parseCurrencyRates(raw string) (map[string]decimal.Decimal, error) {
	rates := map[string]decimal.Decimal{}
	if strings.TrimSpace(raw) == "" {
		return rates, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("CURRENCY_RATES: invalid pair %q", pair)
		}
		code := strings.ToUpper(strings.TrimSpace(parts[0]))
		rate, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil || rate.Sign() <= 0 {
			return nil, fmt.Errorf("CURRENCY_RATES: invalid rate for %s", code)
		}
		rates[code] = rate
	}
	return rates, nil
}
