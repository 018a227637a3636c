// Package config handles node configuration: compiled defaults, an optional
// JSON file overlay, and command-line flags, applied in that order.
package config

import "time"

// Config holds runtime settings for the data node.
//
// Fields:
//   - DatabasePath: path to the identity's sqlite database file.
//   - DataDir: root for temp part files and local payload blobs.
//   - PayloadBackend: "local" (default) or "s3".
//   - S3RootUser / S3RootPassword / S3Bucket / S3Region / S3BaseEndpoint:
//     object storage settings, used when PayloadBackend is "s3".
//   - RedisAddr: notification queue backend; empty means log-only dispatch.
//   - AppTokenSecret: HMAC secret for app bearer tokens (HS256).
//   - InboxBatchSize: max items applied per drive per drain.
//   - InboxPollInterval: delay between inbox drains.
//   - RecoverDeadAfter: checkout age after which stranded inbox items are
//     re-pooled at startup.
//   - DeadLetterRemoteFaults: remove (rather than re-pool) items that fail
//     with a remote-identity conflict.
type Config struct {
	DatabasePath           string
	DataDir                string
	PayloadBackend         string
	S3RootUser             string
	S3RootPassword         string
	S3Bucket               string
	S3Region               string
	S3BaseEndpoint         string
	RedisAddr              string
	AppTokenSecret         string
	InboxBatchSize         int
	InboxPollInterval      time.Duration
	RecoverDeadAfter       time.Duration
	DeadLetterRemoteFaults bool
}

// LoadDefaults populates Config with development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.DatabasePath = "node.db"
	c.DataDir = "data"
	c.PayloadBackend = "local"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "payloads"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.RedisAddr = ""
	c.AppTokenSecret = "secretKey"
	c.InboxBatchSize = 25
	c.InboxPollInterval = 5 * time.Second
	c.RecoverDeadAfter = 1 * time.Hour
	c.DeadLetterRemoteFaults = false
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
