package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/videotube/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8000")
//	-G string   gRPC bind address (e.g., ":50051")
//	-d string   PostgreSQL DSN
//	-s string   access token HMAC secret
//	-S string   refresh token HMAC secret
//	-t int      access token validity, minutes
//	-r int      refresh token validity, minutes
//	-w int      credential store timeout, milliseconds
//	-i          send session cookies without the Secure attribute (local HTTP only)
//	-o string   allowed CORS origin
//	-l string   log level
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000")
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-G", "-d", "-s", "-S", "-t", "-r", "-w", "-o", "-l", "-u", "-p", "-b", "-g", "-e"},
		"-i")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run HTTP server")
	fs.StringVar(&config.EndpointAddrGRPC, "G", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AccessTokenSecret, "s", config.AccessTokenSecret, "access token secret")
	fs.StringVar(&config.RefreshTokenSecret, "S", config.RefreshTokenSecret, "refresh token secret")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")
	storeTimeout := fs.Int("w", int(config.StoreTimeout.Milliseconds()), "store_timeout (in milliseconds)")
	insecureCookies := fs.Bool("i", !config.CookieSecure, "send cookies without Secure attribute")

	fs.StringVar(&config.CORSOrigin, "o", config.CORSOrigin, "allowed CORS origin")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
	config.StoreTimeout = time.Duration(*storeTimeout) * time.Millisecond
	config.CookieSecure = !*insecureCookies
}
