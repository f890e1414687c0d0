package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port      string
	DBPath    string
	BackupDir string

	PriceAPIURL   string
	PriceAPIKey   string // admin-shared fallback key
	HolidayAPIURL string

	SyncInterval time.Duration
	SyncBatch    int
	SyncRPM      int

	// ReminderSpec is a cron expression; the default fires on minute 5 of
	// every hour.
	ReminderSpec string
}

func Load() Config {
	return Config{
		Port:          getEnv("PORT", "8080"),
		DBPath:        getEnv("DB_PATH", "ledgerd.db"),
		BackupDir:     getEnv("BACKUP_DIR", "backups"),
		PriceAPIURL:   getEnv("PRICE_API_URL", "https://www.alphavantage.co"),
		PriceAPIKey:   getEnv("PRICE_API_KEY", ""),
		HolidayAPIURL: getEnv("HOLIDAY_API_URL", "https://date.nager.at"),
		SyncInterval:  getEnvDuration("SYNC_INTERVAL", 15*time.Minute),
		SyncBatch:     getEnvInt("SYNC_BATCH", 20),
		SyncRPM:       getEnvInt("SYNC_RPM", 5),
		ReminderSpec:  getEnv("REMINDER_SPEC", "5 * * * *"),
	}
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
