package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string
	Port        int

	DatabaseDbPath       string
	DatabaseCacheAddress string
	DatabaseCachePort    int

	SessionExpiryMinutes int
	InviteExpiryHours    int
	FraudAppealDays      int
}

func InitConfig() (Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("DATABASE_DB_PATH", "data/server.db")
	viper.SetDefault("DATABASE_CACHE_ADDRESS", "localhost")
	viper.SetDefault("DATABASE_CACHE_PORT", 6379)
	viper.SetDefault("SESSION_EXPIRY_MINUTES", 720)
	viper.SetDefault("INVITE_EXPIRY_HOURS", 48)
	viper.SetDefault("FRAUD_APPEAL_DAYS", 30)

	// A missing .env is fine, env vars and defaults still apply
	_ = viper.ReadInConfig()

	config := Config{
		Environment:          viper.GetString("ENVIRONMENT"),
		Port:                 viper.GetInt("PORT"),
		DatabaseDbPath:       viper.GetString("DATABASE_DB_PATH"),
		DatabaseCacheAddress: viper.GetString("DATABASE_CACHE_ADDRESS"),
		DatabaseCachePort:    viper.GetInt("DATABASE_CACHE_PORT"),
		SessionExpiryMinutes: viper.GetInt("SESSION_EXPIRY_MINUTES"),
		InviteExpiryHours:    viper.GetInt("INVITE_EXPIRY_HOURS"),
		FraudAppealDays:      viper.GetInt("FRAUD_APPEAL_DAYS"),
	}

	if config.DatabaseDbPath == "" {
		return Config{}, fmt.Errorf("DATABASE_DB_PATH is required")
	}

	return config, nil
}
