package config

import (
	"tabletally/internal/logger"

	"github.com/spf13/viper"
)

type Config struct {
	GeneralVersion       string `mapstructure:"GENERAL_VERSION"`
	Environment          string `mapstructure:"ENVIRONMENT"`
	ServerPort           int    `mapstructure:"SERVER_PORT"`
	DatabaseHost         string `mapstructure:"DB_HOST"`
	DatabasePort         int    `mapstructure:"DB_PORT"`
	DatabaseName         string `mapstructure:"DB_NAME"`
	DatabaseUser         string `mapstructure:"DB_USER"`
	DatabasePassword     string `mapstructure:"DB_PASSWORD"`
	DatabaseCacheAddress string `mapstructure:"DB_CACHE_ADDRESS"`
	DatabaseCachePort    int    `mapstructure:"DB_CACHE_PORT"`
	CorsAllowOrigins     string `mapstructure:"CORS_ALLOW_ORIGINS"`
	AuthTokenSecret      string `mapstructure:"AUTH_TOKEN_SECRET"`
	CredentialSecretKey  string `mapstructure:"CREDENTIAL_SECRET_KEY"`
	SchedulerEnabled     bool   `mapstructure:"SCHEDULER_ENABLED"`

	// BGG sync tuning
	BGGBaseURL                 string `mapstructure:"BGG_BASE_URL"`
	SyncMinCallIntervalSeconds int    `mapstructure:"SYNC_MIN_CALL_INTERVAL_SECONDS"`
	SyncMaxIDsPerBatch         int    `mapstructure:"SYNC_MAX_IDS_PER_BATCH"`
	SyncMaxRetryAttempts       int    `mapstructure:"SYNC_MAX_RETRY_ATTEMPTS"`
	SyncProcessingRetrySeconds int    `mapstructure:"SYNC_PROCESSING_RETRY_SECONDS"`
	SyncBackoffCapSeconds      int    `mapstructure:"SYNC_BACKOFF_CAP_SECONDS"`
	SyncStaleMonths            int    `mapstructure:"SYNC_STALE_MONTHS"`
	SyncWorkerCount            int    `mapstructure:"SYNC_WORKER_COUNT"`

	// Credential precedence during outbound submission: play-scoped stored
	// credentials win over user-scoped ones when true. Product has not
	// committed either way, so it is a deployment decision.
	PreferPlayScopedCredentials bool `mapstructure:"PREFER_PLAY_SCOPED_CREDENTIALS"`
}

var ConfigInstance Config

func InitConfig() (Config, error) {
	log := logger.New("config").Function("InitConfig")
	log.Info("Initializing config")

	viper.AutomaticEnv()

	envVars := []string{
		"GENERAL_VERSION", "ENVIRONMENT", "SERVER_PORT",
		"DB_HOST", "DB_PORT", "DB_NAME", "DB_USER", "DB_PASSWORD",
		"DB_CACHE_ADDRESS", "DB_CACHE_PORT",
		"CORS_ALLOW_ORIGINS", "AUTH_TOKEN_SECRET", "CREDENTIAL_SECRET_KEY",
		"SCHEDULER_ENABLED", "BGG_BASE_URL",
		"SYNC_MIN_CALL_INTERVAL_SECONDS", "SYNC_MAX_IDS_PER_BATCH",
		"SYNC_MAX_RETRY_ATTEMPTS", "SYNC_PROCESSING_RETRY_SECONDS",
		"SYNC_BACKOFF_CAP_SECONDS", "SYNC_STALE_MONTHS", "SYNC_WORKER_COUNT",
		"PREFER_PLAY_SCOPED_CREDENTIALS",
	}

	for _, env := range envVars {
		if err := viper.BindEnv(env); err != nil {
			log.Warn("Failed to bind environment variable", "env", env, "error", err)
		}
	}

	envVarsSet := viper.IsSet("SERVER_PORT") && viper.IsSet("DB_HOST")

	if envVarsSet {
		log.Info("Environment variables detected, skipping file loading")
	} else {
		log.Info("Environment variables not found, attempting to load from files")

		viper.SetConfigFile(".env")
		viper.SetConfigType("env")

		if err := viper.ReadInConfig(); err != nil {
			log.Warn("Could not find .env file", "error", err)
		} else {
			log.Info("Loaded .env file")
		}

		viper.SetConfigFile(".env.local")
		if err := viper.MergeInConfig(); err != nil {
			log.Debug("No .env.local file found", "error", err)
		} else {
			log.Info("Loaded .env.local overrides")
		}
	}

	setSyncDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return Config{}, log.Err("Fatal error: could not unmarshal config", err)
	}

	if err := validateConfig(config, log); err != nil {
		return Config{}, err
	}

	log.Info("Successfully initialized config", "environment", config.Environment)
	return ConfigInstance, nil
}

func setSyncDefaults() {
	viper.SetDefault("BGG_BASE_URL", "https://boardgamegeek.com")
	viper.SetDefault("SYNC_MIN_CALL_INTERVAL_SECONDS", 2)
	viper.SetDefault("SYNC_MAX_IDS_PER_BATCH", 20)
	viper.SetDefault("SYNC_MAX_RETRY_ATTEMPTS", 5)
	viper.SetDefault("SYNC_PROCESSING_RETRY_SECONDS", 3)
	viper.SetDefault("SYNC_BACKOFF_CAP_SECONDS", 60)
	viper.SetDefault("SYNC_STALE_MONTHS", 6)
	viper.SetDefault("SYNC_WORKER_COUNT", 4)
	viper.SetDefault("PREFER_PLAY_SCOPED_CREDENTIALS", false)
}

func GetConfig() Config {
	return ConfigInstance
}

func validateConfig(config Config, log logger.Logger) error {
	if config.ServerPort <= 0 {
		return log.Error(
			"Fatal error: invalid server port",
			"port", config.ServerPort,
		)
	}

	if config.SyncMinCallIntervalSeconds <= 0 {
		return log.Error(
			"Fatal error: sync call interval must be positive",
			"interval", config.SyncMinCallIntervalSeconds,
		)
	}

	if config.SyncMaxIDsPerBatch <= 0 {
		return log.Error(
			"Fatal error: batch size must be positive",
			"batchSize", config.SyncMaxIDsPerBatch,
		)
	}

	if config.CredentialSecretKey != "" && len(config.CredentialSecretKey) < 32 {
		return log.Error(
			"Fatal error: CREDENTIAL_SECRET_KEY must be at least 32 bytes",
		)
	}

	ConfigInstance = config
	return nil
}
