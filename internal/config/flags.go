package config

import (
	"flag"
	"os"
	"time"

	"github.com/homebase-id/odin-core-sub020/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   sqlite database path
//	-o string   data directory (temp parts, local payloads)
//	-k string   payload backend: local or s3
//	-u string   S3 root user
//	-w string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-r string   redis address for notifications
//	-s string   app token HMAC secret
//	-n int      inbox batch size
//	-i int      inbox poll interval, seconds
//	-x          dead-letter remote-identity failures
//
// Args are first filtered to the flags handled here so other components can
// define their own.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-d", "-o", "-k", "-u", "-w", "-b", "-g", "-e", "-r", "-s", "-n", "-i", "-x"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabasePath, "d", config.DatabasePath, "sqlite database path")
	fs.StringVar(&config.DataDir, "o", config.DataDir, "data directory")
	fs.StringVar(&config.PayloadBackend, "k", config.PayloadBackend, "payload backend (local|s3)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "w", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.AppTokenSecret, "s", config.AppTokenSecret, "app token secret")
	fs.IntVar(&config.InboxBatchSize, "n", config.InboxBatchSize, "inbox batch size")

	pollInterval := fs.Int("i", int(config.InboxPollInterval.Seconds()), "inbox poll interval (in seconds)")
	fs.BoolVar(&config.DeadLetterRemoteFaults, "x", config.DeadLetterRemoteFaults, "dead-letter remote-identity failures")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.InboxPollInterval = time.Duration(*pollInterval) * time.Second
}
