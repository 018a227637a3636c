package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/homebase-id/odin-core-sub020/internal/flagx"
	"github.com/homebase-id/odin-core-sub020/internal/timex"
)

// JsonConfig is the DTO used only for reading JSON configuration files.
// Interval fields use timex.Duration so both "5s" strings and integer
// nanoseconds parse. Values are copied into the runtime Config after
// unmarshalling.
type JsonConfig struct {
	DatabasePath           string         `json:"database_path"`
	DataDir                string         `json:"data_dir"`
	PayloadBackend         string         `json:"payload_backend"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	RedisAddr              string         `json:"redis_addr"`
	AppTokenSecret         string         `json:"app_token_secret"`
	InboxBatchSize         int            `json:"inbox_batch_size"`
	InboxPollInterval      timex.Duration `json:"inbox_poll_interval"`
	RecoverDeadAfter       timex.Duration `json:"recover_dead_after"`
	DeadLetterRemoteFaults bool           `json:"dead_letter_remote_faults"`
}

// parseJson overlays values from the JSON file named by -c/-config. No file
// flag means no overlay. An unreadable or invalid file panics: the node must
// not start on a half-applied configuration.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigFileFlag()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabasePath = c.DatabasePath
	config.DataDir = c.DataDir
	config.PayloadBackend = c.PayloadBackend
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
	config.RedisAddr = c.RedisAddr
	config.AppTokenSecret = c.AppTokenSecret
	config.InboxBatchSize = c.InboxBatchSize
	config.InboxPollInterval = time.Duration(c.InboxPollInterval.Duration)
	config.RecoverDeadAfter = time.Duration(c.RecoverDeadAfter.Duration)
	config.DeadLetterRemoteFaults = c.DeadLetterRemoteFaults
}
