package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pyoneerc/deadhand/internal/flagx"
	"github.com/pyoneerc/deadhand/internal/timex"
)

// JsonConfig is an intermediate DTO used only for reading JSON
// configuration files. It uses timex.Duration for interval fields, which
// allows parsing both string values such as "24h" and integer nanoseconds.
// After unmarshalling, its fields are copied into the runtime Config.
type JsonConfig struct {
	DatabaseDSN                  string         `json:"database_dsn"`
	MasterKey                    string         `json:"master_key"`
	MasterKeySalt                string         `json:"master_key_salt"`
	SessionSecret                string         `json:"session_secret"`
	SessionTokenValidityDuration timex.Duration `json:"session_token_validity_duration"`
	RemindAfterDays              *int           `json:"remind_after_days"`
	RemindUntilDays              *int           `json:"remind_until_days"`
	WarnAfterDays                *int           `json:"warn_after_days"`
	WarnUntilDays                *int           `json:"warn_until_days"`
	ReleaseAfterDays             *int           `json:"release_after_days"`
	SweepInterval                timex.Duration `json:"sweep_interval"`
	SweepVaultTimeout            timex.Duration `json:"sweep_vault_timeout"`
	NotifyDedupTTL               timex.Duration `json:"notify_dedup_ttl"`
	RedisAddr                    string         `json:"redis_addr"`
	RedisPassword                string         `json:"redis_password"`
	RedisDB                      *int           `json:"redis_db"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance. The file path comes from the -c/-config flags; when
// neither is set no file is loaded. Unset fields keep their defaults.
// If the file cannot be read or contains invalid JSON, the function panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
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

	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.MasterKey != "" {
		config.MasterKey = c.MasterKey
	}
	if c.MasterKeySalt != "" {
		config.MasterKeySalt = c.MasterKeySalt
	}
	if c.SessionSecret != "" {
		config.SessionSecret = c.SessionSecret
	}
	if c.SessionTokenValidityDuration.Duration != 0 {
		config.SessionTokenValidityDuration = time.Duration(c.SessionTokenValidityDuration.Duration)
	}
	if c.RemindAfterDays != nil {
		config.RemindAfterDays = *c.RemindAfterDays
	}
	if c.RemindUntilDays != nil {
		config.RemindUntilDays = *c.RemindUntilDays
	}
	if c.WarnAfterDays != nil {
		config.WarnAfterDays = *c.WarnAfterDays
	}
	if c.WarnUntilDays != nil {
		config.WarnUntilDays = *c.WarnUntilDays
	}
	if c.ReleaseAfterDays != nil {
		config.ReleaseAfterDays = *c.ReleaseAfterDays
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = time.Duration(c.SweepInterval.Duration)
	}
	if c.SweepVaultTimeout.Duration != 0 {
		config.SweepVaultTimeout = time.Duration(c.SweepVaultTimeout.Duration)
	}
	if c.NotifyDedupTTL.Duration != 0 {
		config.NotifyDedupTTL = time.Duration(c.NotifyDedupTTL.Duration)
	}
	if c.RedisAddr != "" {
		config.RedisAddr = c.RedisAddr
	}
	if c.RedisPassword != "" {
		config.RedisPassword = c.RedisPassword
	}
	if c.RedisDB != nil {
		config.RedisDB = *c.RedisDB
	}
	if c.S3RootUser != "" {
		config.S3RootUser = c.S3RootUser
	}
	if c.S3RootPassword != "" {
		config.S3RootPassword = c.S3RootPassword
	}
	if c.S3Bucket != "" {
		config.S3Bucket = c.S3Bucket
	}
	if c.S3Region != "" {
		config.S3Region = c.S3Region
	}
	if c.S3BaseEndpoint != "" {
		config.S3BaseEndpoint = c.S3BaseEndpoint
	}
}
