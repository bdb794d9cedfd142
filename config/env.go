package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays CARENEST_* environment variables onto cfg. Values that
// fail to parse are ignored.
func FromEnv(cfg *Config) {
	setString(&cfg.HTTP.Addr, "CARENEST_HTTP_ADDR")
	setString(&cfg.HTTP.DWPPath, "CARENEST_DWP_PATH")
	setBool(&cfg.HTTP.Prometheus, "CARENEST_PROMETHEUS")

	setString(&cfg.Store.Driver, "CARENEST_STORE_DRIVER")
	setString(&cfg.Store.DSN, "CARENEST_STORE_DSN")
	setString(&cfg.Store.Database, "CARENEST_STORE_DATABASE")
	if v := os.Getenv("CARENEST_STORE_ENDPOINTS"); v != "" {
		cfg.Store.Endpoints = splitList(v)
	}
	setBool(&cfg.Store.Migrate, "CARENEST_STORE_MIGRATE")

	setString(&cfg.Bus.Driver, "CARENEST_BUS_DRIVER")
	setString(&cfg.Bus.RedisAddr, "CARENEST_REDIS_ADDR")
	setDuration(&cfg.Bus.AckTimeout, "CARENEST_ACK_TIMEOUT")

	setString(&cfg.Log.Level, "CARENEST_LOG_LEVEL")
	setString(&cfg.Log.Format, "CARENEST_LOG_FORMAT")
	setBool(&cfg.Log.Audit, "CARENEST_LOG_AUDIT")

	setDuration(&cfg.Claims.Timeout, "CARENEST_CLAIM_TIMEOUT")
	setInt(&cfg.Claims.MaxAttempts, "CARENEST_CLAIM_MAX_ATTEMPTS")
	setBool(&cfg.Claims.RequireKnownHelpers, "CARENEST_REQUIRE_KNOWN_HELPERS")
	setInt(&cfg.Broadcast.Retries, "CARENEST_BROADCAST_RETRIES")

	setDuration(&cfg.OTPExpiry, "CARENEST_OTP_EXPIRY")
	setDuration(&cfg.ShutdownTimeout, "CARENEST_SHUTDOWN_TIMEOUT")

	// CARENEST_API_KEYS is a comma separated list of token:subject:scope|scope.
	if v := os.Getenv("CARENEST_API_KEYS"); v != "" {
		cfg.APIKeys = nil
		for _, entry := range splitList(v) {
			parts := strings.SplitN(entry, ":", 3)
			key := APIKey{Token: parts[0], Subject: parts[0]}
			if len(parts) > 1 && parts[1] != "" {
				key.Subject = parts[1]
			}
			if len(parts) > 2 {
				key.Scopes = strings.Split(parts[2], "|")
			}
			cfg.APIKeys = append(cfg.APIKeys, key)
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}
