package config

import (
	"flag"
	"os"
	"time"

	"github.com/pyoneerc/deadhand/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN
//	-m string   master key passphrase
//	-s string   session HMAC secret
//	-i int      sweep interval, minutes
//	-t int      per-vault sweep timeout, seconds
//	-r string   Redis address for notification dedup
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name (empty disables the release archive)
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components. Duration
// flags are accepted as integers and converted to time.Duration values.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-m", "-s", "-i", "-t", "-r", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.MasterKey, "m", config.MasterKey, "master key passphrase")
	fs.StringVar(&config.SessionSecret, "s", config.SessionSecret, "session secret key")

	sweepInterval := fs.Int("i", int(config.SweepInterval.Minutes()), "sweep interval (in minutes)")
	sweepVaultTimeout := fs.Int("t", int(config.SweepVaultTimeout.Seconds()), "per-vault sweep timeout (in seconds)")

	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address for notification dedup")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SweepInterval = time.Duration(*sweepInterval) * time.Minute
	config.SweepVaultTimeout = time.Duration(*sweepVaultTimeout) * time.Second
}
