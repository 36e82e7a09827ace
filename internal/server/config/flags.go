package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

var knownFlags = []string{
	"-a", "-g", "-d", "-s", "-t", "-r", "-w", "-v",
	"-f", "-b", "-k", "-R", "-m", "-n", "-l",
}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-g string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   access token HMAC secret key
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-w int      reset-password token validity, minutes
//	-v int      email-verification token validity, minutes
//	-f string   frontend base URL used in emailed links
//	-b string   storage backend (postgres|memory)
//	-k string   action token backend (postgres|redis)
//	-R string   redis address
//	-m string   mail backend (log|ses)
//	-n int      password hash workers
//	-l string   log level
//
// os.Args is first filtered with flagx.FilterArgs so that flags owned by
// other components (e.g. -c) do not break parsing. Durations are given in
// whole minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], knownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	access := fs.Int("t", minutes(config.AccessTokenValidityDuration), "access token validity (in minutes)")
	refresh := fs.Int("r", minutes(config.RefreshTokenValidityDuration), "refresh token validity (in minutes)")
	reset := fs.Int("w", minutes(config.ResetPasswordTokenValidityDuration), "reset-password token validity (in minutes)")
	verify := fs.Int("v", minutes(config.EmailVerificationTokenValidityDuration), "email-verification token validity (in minutes)")

	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend base URL")
	fs.StringVar(&config.StorageBackend, "b", config.StorageBackend, "storage backend (postgres|memory)")
	fs.StringVar(&config.ActionTokenBackend, "k", config.ActionTokenBackend, "action token backend (postgres|redis)")
	fs.StringVar(&config.RedisAddr, "R", config.RedisAddr, "redis address")
	fs.StringVar(&config.MailBackend, "m", config.MailBackend, "mail backend (log|ses)")
	fs.IntVar(&config.HashWorkers, "n", config.HashWorkers, "password hash workers")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*access) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refresh) * time.Minute
	config.ResetPasswordTokenValidityDuration = time.Duration(*reset) * time.Minute
	config.EmailVerificationTokenValidityDuration = time.Duration(*verify) * time.Minute
}

func minutes(d time.Duration) int {
	return int(d / time.Minute)
}
