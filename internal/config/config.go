package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file, environment variables, and defaults
func Load(configPath string) (*Config, error) {
	config := GetDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/sentinel/")
	viper.AddConfigPath("$HOME/.sentinel/")

	viper.SetEnvPrefix("SENTINEL")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides maps the flat legacy environment keys onto the config.
// These take precedence over file values so that container deployments can
// tune the gateway without a config file.
func applyEnvOverrides(config *Config) {
	if v, ok := lookupInt("PORT"); ok {
		config.Server.Port = v
	}
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		config.LLM.APIKey = v
	}
	if v, ok := os.LookupEnv("OPENAI_MODEL"); ok && v != "" {
		config.LLM.Model = v
	}
	if v, ok := os.LookupEnv("OPENAI_BASE_URL"); ok && v != "" {
		config.LLM.BaseURL = v
	}
	if v, ok := os.LookupEnv("ANALYSIS_MODE"); ok && v != "" {
		config.Analysis.Mode = v
	}
	if v, ok := lookupFloat("THREAT_THRESHOLD_WARN"); ok {
		config.Analysis.WarnThreshold = v
	}
	if v, ok := lookupFloat("THREAT_THRESHOLD_BLOCK"); ok {
		config.Analysis.BlockThreshold = v
	}
	if v, ok := lookupInt("MAX_SESSION_HISTORY"); ok {
		config.Session.MaxHistory = v
	}
	if v, ok := lookupInt("SESSION_TTL_MINUTES"); ok {
		config.Session.TTLMinutes = v
	}
	if v, ok := os.LookupEnv("REDIS_URL"); ok && v != "" {
		config.Store.Backend = "redis"
		config.Store.RedisURL = v
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok && v != "" {
		config.Signatures.Enabled = true
		config.Signatures.DatabaseURL = v
	}
	if v, ok := lookupInt("LLM_TIMEOUT_SECONDS"); ok {
		config.LLM.Timeout = time.Duration(v) * time.Second
	}
}

func lookupInt(key string) (int, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupFloat(key string) (float64, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Watch starts watching the configuration file for changes
func Watch(callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := viper.Unmarshal(newConfig); err != nil {
			return
		}
		applyEnvOverrides(newConfig)
		if err := newConfig.Validate(); err != nil {
			return
		}
		callback(newConfig)
	})

	return nil
}
