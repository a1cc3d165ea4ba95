/**
 * @description
 * This package handles the configuration management for the service. It uses
 * the Viper library to read configuration from environment variables,
 * providing a centralized and straightforward way to manage application
 * settings.
 *
 * @dependencies
 * - github.com/spf13/viper: A popular library for Go application configuration.
 */

package config

import (
	"log"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all the configuration variables for the commerce-service.
// These values are loaded from environment variables.
type Config struct {
	ServerPort               string `mapstructure:"SERVER_PORT"`
	DatabaseURL              string `mapstructure:"DATABASE_URL"`
	RedisURL                 string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix     string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	RabbitMQURL              string `mapstructure:"RABBITMQ_URL"`
	PaymentReportQueue       string `mapstructure:"PAYMENT_REPORT_QUEUE"`
	JWKSURL                  string `mapstructure:"JWKS_URL"`
	InternalAPIKey           string `mapstructure:"INTERNAL_API_KEY"`
	OrderExpiryHours         int    `mapstructure:"ORDER_EXPIRY_HOURS"`
	LicenseFeePercent        int64  `mapstructure:"LICENSE_FEE_PERCENT"`
	ResaleCommissionPercent  int64  `mapstructure:"RESALE_COMMISSION_PERCENT"`
	MatchTolerancePercent    int64  `mapstructure:"MATCH_TOLERANCE_PERCENT"`
	OrderExpirySweepSchedule string `mapstructure:"ORDER_EXPIRY_SWEEP_SCHEDULE"`
	RecordRateLimitPerMinute int    `mapstructure:"RECORD_RATE_LIMIT_PER_MINUTE"`
	BankAccountName          string `mapstructure:"BANK_ACCOUNT_NAME"`
	BankIBAN                 string `mapstructure:"BANK_IBAN"`
	BankName                 string `mapstructure:"BANK_NAME"`
	USDTWalletTRC20          string `mapstructure:"USDT_WALLET_TRC20"`
	USDTWalletERC20          string `mapstructure:"USDT_WALLET_ERC20"`
	USDTWalletBEP20          string `mapstructure:"USDT_WALLET_BEP20"`
}

// LoadConfig reads configuration from environment variables from the given
// path. It uses Viper to automatically bind environment variables to the
// Config struct.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("PAYMENT_REPORT_QUEUE", "commerce_service.payment_reports")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "fera:rate_limit")
	viper.SetDefault("ORDER_EXPIRY_HOURS", 72)
	viper.SetDefault("LICENSE_FEE_PERCENT", 5)
	viper.SetDefault("RESALE_COMMISSION_PERCENT", 1)
	viper.SetDefault("MATCH_TOLERANCE_PERCENT", 1)
	viper.SetDefault("ORDER_EXPIRY_SWEEP_SCHEDULE", "*/10 * * * *")
	viper.SetDefault("RECORD_RATE_LIMIT_PER_MINUTE", 60)

	for _, key := range []string{
		"SERVER_PORT", "PORT", "DATABASE_URL", "REDIS_URL", "REDIS_RATE_LIMIT_PREFIX",
		"RABBITMQ_URL", "PAYMENT_REPORT_QUEUE", "JWKS_URL", "INTERNAL_API_KEY",
		"ORDER_EXPIRY_HOURS", "LICENSE_FEE_PERCENT", "RESALE_COMMISSION_PERCENT",
		"MATCH_TOLERANCE_PERCENT", "ORDER_EXPIRY_SWEEP_SCHEDULE",
		"RECORD_RATE_LIMIT_PER_MINUTE", "BANK_ACCOUNT_NAME", "BANK_IBAN", "BANK_NAME",
		"USDT_WALLET_TRC20", "USDT_WALLET_ERC20", "USDT_WALLET_BEP20",
	} {
		_ = viper.BindEnv(key)
	}

	if err = viper.ReadInConfig(); err != nil {
		// The .env file is optional; only surface real read failures.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.InternalAPIKey = strings.TrimSpace(config.InternalAPIKey)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	if strings.TrimSpace(config.RedisRateLimitPrefix) == "" {
		config.RedisRateLimitPrefix = "fera:rate_limit"
	}

	if config.OrderExpiryHours <= 0 {
		log.Printf("level=warn component=config msg=\"non-positive order expiry configured; using 72h\" hours=%d", config.OrderExpiryHours)
		config.OrderExpiryHours = 72
	}
	if config.LicenseFeePercent < 0 {
		log.Printf("level=warn component=config msg=\"negative license fee percent configured; coercing to zero\" percent=%d", config.LicenseFeePercent)
		config.LicenseFeePercent = 0
	}
	if config.ResaleCommissionPercent < 0 {
		config.ResaleCommissionPercent = 0
	}
	if config.MatchTolerancePercent < 0 {
		config.MatchTolerancePercent = 0
	}
	if config.RecordRateLimitPerMinute < 0 {
		config.RecordRateLimitPerMinute = 0
	}
	if strings.TrimSpace(config.OrderExpirySweepSchedule) == "" {
		config.OrderExpirySweepSchedule = "*/10 * * * *"
	}

	return
}
