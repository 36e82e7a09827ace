package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations use
// timex.Duration so both "15m" and integer nanoseconds are accepted. Only
// fields present in the file override the current Config.
type JsonConfig struct {
	EndpointAddrHTTP                       string         `json:"endpoint_addr_http"`
	EndpointAddrGRPC                       string         `json:"endpoint_addr_grpc"`
	DatabaseDSN                            string         `json:"database_dsn"`
	StorageBackend                         string         `json:"storage_backend"`
	ActionTokenBackend                     string         `json:"action_token_backend"`
	RedisAddr                              string         `json:"redis_addr"`
	RedisPassword                          string         `json:"redis_password"`
	RedisDB                                *int           `json:"redis_db"`
	SecretKey                              string         `json:"secret_key"`
	AccessTokenValidityDuration            timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration           timex.Duration `json:"refresh_token_validity_duration"`
	ResetPasswordTokenValidityDuration     timex.Duration `json:"reset_password_token_validity_duration"`
	EmailVerificationTokenValidityDuration timex.Duration `json:"email_verification_token_validity_duration"`
	FrontendURL                            string         `json:"frontend_url"`
	InsecureCookies                        *bool          `json:"insecure_cookies"`
	MailBackend                            string         `json:"mail_backend"`
	MailFrom                               string         `json:"mail_from"`
	SESRegion                              string         `json:"ses_region"`
	SESEndpoint                            string         `json:"ses_endpoint"`
	SESAccessKey                           string         `json:"ses_access_key"`
	SESSecretKey                           string         `json:"ses_secret_key"`
	HashWorkers                            int            `json:"hash_workers"`
	PurgeInterval                          timex.Duration `json:"purge_interval"`
	LogLevel                               string         `json:"log_level"`
}

// parseJson loads the file named by -c/-config (or AUTHKEEPER_CONFIG) into
// config. Without a path nothing happens; an unreadable or malformed file
// panics, as a half-applied configuration is worse than none.
func parseJson(config *Config) {
	path := flagx.ConfigFile()
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.ActionTokenBackend, c.ActionTokenBackend)
	setString(&config.RedisAddr, c.RedisAddr)
	setString(&config.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.ResetPasswordTokenValidityDuration, c.ResetPasswordTokenValidityDuration)
	setDuration(&config.EmailVerificationTokenValidityDuration, c.EmailVerificationTokenValidityDuration)
	setString(&config.FrontendURL, c.FrontendURL)
	if c.InsecureCookies != nil {
		config.InsecureCookies = *c.InsecureCookies
	}
	setString(&config.MailBackend, c.MailBackend)
	setString(&config.MailFrom, c.MailFrom)
	setString(&config.SESRegion, c.SESRegion)
	setString(&config.SESEndpoint, c.SESEndpoint)
	setString(&config.SESAccessKey, c.SESAccessKey)
	setString(&config.SESSecretKey, c.SESSecretKey)
	if c.HashWorkers > 0 {
		config.HashWorkers = c.HashWorkers
	}
	setDuration(&config.PurgeInterval, c.PurgeInterval)
	setString(&config.LogLevel, c.LogLevel)
}
