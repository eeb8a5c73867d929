package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := newViper(configPath)
	return read(v)
}

// Watch loads configuration and invokes onChange with every valid revision of
// the config file. Invalid revisions are reported to onError and skipped.
func Watch(configPath string, onChange func(*Config), onError func(error)) (*Config, error) {
	v := newViper(configPath)

	config, err := read(v)
	if err != nil {
		return nil, err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		newConfig := GetDefaults()
		if err := v.Unmarshal(newConfig); err != nil {
			onError(fmt.Errorf("failed to unmarshal config: %w", err))
			return
		}

		if err := validateConfig(newConfig); err != nil {
			onError(fmt.Errorf("invalid configuration: %w", err))
			return
		}

		onChange(newConfig)
	})
	v.WatchConfig()

	return config, nil
}

func newViper(configPath string) *viper.Viper {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/datacloak/")
	v.AddConfigPath("$HOME/.datacloak/")

	// DATACLOAK_ENGINE_MAX_TEXT_LENGTH overrides engine.max_text_length
	v.SetEnvPrefix("DATACLOAK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, GetDefaults())

	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	return v
}

func read(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	config := GetDefaults()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// setDefaults registers every key so environment overrides apply even when
// the file does not mention it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("engine.enable_redos_protection", d.Engine.EnableReDoSProtection)
	v.SetDefault("engine.email_validation", d.Engine.EmailValidation)
	v.SetDefault("engine.credit_card_validation", d.Engine.CreditCardValidation)
	v.SetDefault("engine.max_text_length", d.Engine.MaxTextLength)
	v.SetDefault("engine.regex_timeout", d.Engine.RegexTimeout)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_bytes", d.Server.MaxBodyBytes)
	v.SetDefault("server.echo_original", d.Server.EchoOriginal)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file.enabled", d.Logging.File.Enabled)
	v.SetDefault("logging.file.path", d.Logging.File.Path)

	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.requests_per_second", d.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)

	v.SetDefault("stats.enabled", d.Stats.Enabled)
	v.SetDefault("stats.redis_url", d.Stats.RedisURL)
	v.SetDefault("stats.key_prefix", d.Stats.KeyPrefix)
	v.SetDefault("stats.timeout", d.Stats.Timeout)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.database_url", d.Audit.DatabaseURL)
	v.SetDefault("audit.max_open_conns", d.Audit.MaxOpenConns)
	v.SetDefault("audit.max_idle_conns", d.Audit.MaxIdleConns)
	v.SetDefault("audit.conn_max_lifetime", d.Audit.ConnMaxLifetime)

	v.SetDefault("websocket.enabled", d.WebSocket.Enabled)
	v.SetDefault("websocket.path", d.WebSocket.Path)
	v.SetDefault("websocket.username", d.WebSocket.Username)
	v.SetDefault("websocket.password", d.WebSocket.Password)
	v.SetDefault("websocket.broadcast_detections", d.WebSocket.BroadcastDetections)
	v.SetDefault("websocket.broadcast_system", d.WebSocket.BroadcastSystem)

	v.SetDefault("batch.batch_size", d.Batch.BatchSize)
	v.SetDefault("batch.worker_count", d.Batch.WorkerCount)
}

// validateConfig validates the loaded configuration
func validateConfig(config *Config) error {
	if _, err := config.PrivacyEngineConfig(); err != nil {
		return err
	}

	if config.Engine.MaxTextLength <= 0 {
		return fmt.Errorf("invalid engine max_text_length: %d (must be positive)", config.Engine.MaxTextLength)
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("invalid server max_body_bytes: %d (must be positive)", config.Server.MaxBodyBytes)
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	if config.RateLimit.Enabled && (config.RateLimit.RequestsPerSecond <= 0 || config.RateLimit.Burst <= 0) {
		return fmt.Errorf("invalid rate limit: requests_per_second and burst must be positive")
	}

	if config.Stats.Enabled && config.Stats.RedisURL == "" {
		return fmt.Errorf("stats enabled without redis_url")
	}

	if config.Audit.Enabled && config.Audit.DatabaseURL == "" {
		return fmt.Errorf("audit enabled without database_url")
	}

	if config.Batch.BatchSize <= 0 || config.Batch.WorkerCount <= 0 {
		return fmt.Errorf("invalid batch config: batch_size and worker_count must be positive")
	}

	return nil
}

// YAML renders the configuration with credentials masked
func (c *Config) YAML() ([]byte, error) {
	redacted := *c
	redacted.Stats.RedisURL = MaskURL(c.Stats.RedisURL)
	redacted.Audit.DatabaseURL = MaskURL(c.Audit.DatabaseURL)
	if redacted.WebSocket.Password != "" {
		redacted.WebSocket.Password = "***"
	}

	return yaml.Marshal(&redacted)
}

// MaskURL hides the password component of a connection URL
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); !ok {
		return raw
	}
	u.User = url.UserPassword(u.User.Username(), "***")
	return u.String()
}
