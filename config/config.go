// Package config loads the dispatch pipeline definition from YAML, applies
// environment overrides, and assembles a ready-to-use Dispatcher.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-dispatch/pkg/push"
)

// Gateway types accepted in the configuration.
const (
	GatewayC2DM    = "c2dm"
	GatewayAPNS    = "apns"
	GatewayFCM     = "fcm"
	GatewayWebPush = "webpush"
)

// Middleware types accepted in the configuration.
const (
	MiddlewareLogging   = "logging"
	MiddlewareRateLimit = "ratelimit"
	MiddlewareRetry     = "retry"
)

// GatewayConfig describes one gateway entry: its backend type and the raw
// option mapping handed to the gateway constructor.
type GatewayConfig struct {
	Type    string
	Options push.Options
}

// MiddlewareConfig describes one middleware entry.
type MiddlewareConfig struct {
	Type       string
	Rate       float64
	Burst      int
	Wait       bool
	MaxRetries int
	BaseDelay  time.Duration
}

// Config is the single, authoritative pipeline configuration.
type Config struct {
	Middlewares []MiddlewareConfig
	Gateways    []GatewayConfig
}

type yamlGateway struct {
	Type    string         `yaml:"type"`
	Options map[string]any `yaml:"options"`
}

type yamlMiddleware struct {
	Type       string  `yaml:"type"`
	Rate       float64 `yaml:"rate"`
	Burst      int     `yaml:"burst"`
	Wait       bool    `yaml:"wait"`
	MaxRetries int     `yaml:"max_retries"`
	BaseDelay  string  `yaml:"base_delay"`
}

// yamlConfig mirrors the raw config file.
type yamlConfig struct {
	Middlewares []yamlMiddleware `yaml:"middlewares"`
	Gateways    []yamlGateway    `yaml:"gateways"`
}

// NewConfigFromYaml parses the raw file into a clean Config struct.
func NewConfigFromYaml(data []byte, logger *slog.Logger) (*Config, error) {
	logger.Debug("Mapping YAML config to base config struct")

	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal config yaml: %w", err)
	}

	cfg := &Config{}
	for _, gw := range raw.Gateways {
		opts := push.Options{}
		for k, v := range gw.Options {
			opts[k] = v
		}
		cfg.Gateways = append(cfg.Gateways, GatewayConfig{Type: gw.Type, Options: opts})
	}
	for _, mw := range raw.Middlewares {
		entry := MiddlewareConfig{
			Type:       mw.Type,
			Rate:       mw.Rate,
			Burst:      mw.Burst,
			Wait:       mw.Wait,
			MaxRetries: mw.MaxRetries,
		}
		if mw.BaseDelay != "" {
			delay, err := time.ParseDuration(mw.BaseDelay)
			if err != nil {
				return nil, fmt.Errorf("middleware %s: parse base_delay: %w", mw.Type, err)
			}
			entry.BaseDelay = delay
		}
		cfg.Middlewares = append(cfg.Middlewares, entry)
	}

	logger.Debug("YAML config mapping complete",
		"gateways", len(cfg.Gateways),
		"middlewares", len(cfg.Middlewares),
	)
	return cfg, nil
}

// envOverrides maps environment variables onto gateway option keys, applied
// to every configured gateway of the given type.
var envOverrides = map[string]map[string]string{
	GatewayC2DM: {
		"PUSH_C2DM_EMAIL":    "email",
		"PUSH_C2DM_PASSWORD": "password",
		"PUSH_C2DM_SOURCE":   "source",
		"PUSH_C2DM_AUTH_URL": "authentication_url",
		"PUSH_C2DM_PUSH_URL": "push_url",
	},
	GatewayAPNS: {
		"PUSH_APNS_KEY_ID":    "key_id",
		"PUSH_APNS_TEAM_ID":   "team_id",
		"PUSH_APNS_BUNDLE_ID": "bundle_id",
		"PUSH_APNS_P8_KEY":    "p8_key",
	},
	GatewayFCM: {
		"PUSH_FCM_PROJECT_ID":       "project_id",
		"PUSH_FCM_CREDENTIALS_JSON": "credentials_json",
	},
	GatewayWebPush: {
		"PUSH_VAPID_PUBLIC_KEY":  "vapid_public_key",
		"PUSH_VAPID_PRIVATE_KEY": "vapid_private_key",
		"PUSH_VAPID_SUBSCRIBER":  "subscriber",
	},
}

// UpdateConfigWithEnvOverrides applies environment variables and final
// validation. Option validation proper (required keys) stays with the
// gateway constructors, which run lazily.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("Applying environment variable overrides...")

	for i := range cfg.Gateways {
		gw := &cfg.Gateways[i]
		for env, key := range envOverrides[gw.Type] {
			if val := os.Getenv(env); val != "" {
				logger.Debug("Overriding gateway option", "gateway", gw.Type, "key", key, "source", "env")
				gw.Options[key] = val
			}
		}
	}

	if len(cfg.Gateways) == 0 {
		return nil, fmt.Errorf("at least one gateway must be configured")
	}
	for _, gw := range cfg.Gateways {
		if _, known := envOverrides[gw.Type]; !known {
			return nil, fmt.Errorf("unknown gateway type %q", gw.Type)
		}
	}
	for _, mw := range cfg.Middlewares {
		switch mw.Type {
		case MiddlewareLogging, MiddlewareRateLimit, MiddlewareRetry:
		default:
			return nil, fmt.Errorf("unknown middleware type %q", mw.Type)
		}
	}

	logger.Debug("Configuration finalized and validated successfully")
	return cfg, nil
}
