package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/emailproof/internal/flagx"
	"github.com/dmitrijs2005/emailproof/internal/timex"
)

// JsonConfig is the on-disk shape of the configuration file. Durations accept
// "30s"-style strings or integer nanoseconds. Absent fields keep the value
// already present in Config.
type JsonConfig struct {
	DatabaseDSN         *string         `json:"database_dsn"`
	SQLitePath          *string         `json:"sqlite_path"`
	ProverURL           *string         `json:"prover_url"`
	ProverTokenID       *string         `json:"prover_token_id"`
	ProverTokenSecret   *string         `json:"prover_token_secret"`
	ProofTimeout        *timex.Duration `json:"proof_timeout"`
	ProverRetries       *int            `json:"prover_retries"`
	ProverRetryBase     *timex.Duration `json:"prover_retry_base"`
	ProverRatePerSecond *float64        `json:"prover_rate_per_second"`
	ProverBurst         *int            `json:"prover_burst"`
	KeyMaxTTL           *timex.Duration `json:"key_max_ttl"`
	TemplatesPath       *string         `json:"templates_path"`
	Output              *string         `json:"output"`
	S3RootUser          *string         `json:"s3_root_user"`
	S3RootPassword      *string         `json:"s3_root_password"`
	S3Bucket            *string         `json:"s3_bucket"`
	S3Region            *string         `json:"s3_region"`
	S3BaseEndpoint      *string         `json:"s3_base_endpoint"`
	LogLevel            *string         `json:"log_level"`
	LogFormat           *string         `json:"log_format"`
}

// parseJson overlays values from the file given with -c/-config.
// A missing flag means no file; an unreadable file or invalid JSON panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
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

	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SQLitePath, c.SQLitePath)
	setString(&config.ProverURL, c.ProverURL)
	setString(&config.ProverTokenID, c.ProverTokenID)
	setString(&config.ProverTokenSecret, c.ProverTokenSecret)
	if c.ProofTimeout != nil {
		config.ProofTimeout = c.ProofTimeout.Duration
	}
	if c.ProverRetries != nil {
		config.ProverRetries = *c.ProverRetries
	}
	if c.ProverRetryBase != nil {
		config.ProverRetryBase = c.ProverRetryBase.Duration
	}
	if c.ProverRatePerSecond != nil {
		config.ProverRatePerSecond = *c.ProverRatePerSecond
	}
	if c.ProverBurst != nil {
		config.ProverBurst = *c.ProverBurst
	}
	if c.KeyMaxTTL != nil {
		config.KeyMaxTTL = c.KeyMaxTTL.Duration
	}
	setString(&config.TemplatesPath, c.TemplatesPath)
	setString(&config.Output, c.Output)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFormat, c.LogFormat)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
