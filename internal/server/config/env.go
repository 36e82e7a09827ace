package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// EnvPrefix prefixes every environment variable read by parseEnv.
const EnvPrefix = "AUTHKEEPER_"

// parseEnv overlays values from AUTHKEEPER_* environment variables. It is
// mainly meant for secrets that should not live in a config file or on the
// command line. Malformed numbers and durations are ignored.
func parseEnv(config *Config) {
	setString(&config.EndpointAddrHTTP, env("HTTP_ADDR"))
	setString(&config.EndpointAddrGRPC, env("GRPC_ADDR"))
	setString(&config.DatabaseDSN, env("DATABASE_DSN"))
	setString(&config.StorageBackend, env("STORAGE_BACKEND"))
	setString(&config.ActionTokenBackend, env("ACTION_TOKEN_BACKEND"))
	setString(&config.RedisAddr, env("REDIS_ADDR"))
	setString(&config.RedisPassword, env("REDIS_PASSWORD"))
	setString(&config.SecretKey, env("SECRET_KEY"))
	setString(&config.FrontendURL, env("FRONTEND_URL"))
	setString(&config.MailBackend, env("MAIL_BACKEND"))
	setString(&config.MailFrom, env("MAIL_FROM"))
	setString(&config.SESRegion, env("SES_REGION"))
	setString(&config.SESEndpoint, env("SES_ENDPOINT"))
	setString(&config.SESAccessKey, env("SES_ACCESS_KEY"))
	setString(&config.SESSecretKey, env("SES_SECRET_KEY"))
	setString(&config.LogLevel, env("LOG_LEVEL"))

	if v, err := strconv.Atoi(env("REDIS_DB")); err == nil {
		config.RedisDB = v
	}
	if v, err := strconv.Atoi(env("HASH_WORKERS")); err == nil && v > 0 {
		config.HashWorkers = v
	}
	if v, err := strconv.ParseBool(env("INSECURE_COOKIES")); err == nil {
		config.InsecureCookies = v
	}
	if d, err := time.ParseDuration(env("PURGE_INTERVAL")); err == nil {
		config.PurgeInterval = d
	}
}

func env(name string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + name))
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
