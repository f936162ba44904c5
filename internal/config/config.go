// Package config handles configuration for the proof pipeline and its
// fixture driver: defaults, an optional JSON overlay, then command-line flags.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings.
//
// Fields:
//   - DatabaseDSN: PostgreSQL DSN (pgx). Empty selects the SQLite store at SQLitePath.
//   - ProverURL: "dev" for the in-process backend, grpc://host:port for the
//     gRPC backend, anything else is an HTTP base URL.
//   - ProverTokenID / ProverTokenSecret: bearer token pair for the prover.
//   - ProofTimeout: deadline for one proof generation, retries included.
//   - ProverRetries / ProverRetryBase: transient-failure retry budget.
//   - ProverRatePerSecond / ProverBurst: submission rate limit.
//   - KeyMaxTTL: upper bound on how long a fetched DKIM key is trusted.
//   - TemplatesPath: JSON command template registry; empty uses built-ins.
//   - Output: fixture destination, a file path or s3://bucket/key.
//   - S3*: object storage settings for s3:// outputs.
type Config struct {
	DatabaseDSN         string
	SQLitePath          string
	ProverURL           string
	ProverTokenID       string
	ProverTokenSecret   string
	ProofTimeout        time.Duration
	ProverRetries       int
	ProverRetryBase     time.Duration
	ProverRatePerSecond float64
	ProverBurst         int
	KeyMaxTTL           time.Duration
	TemplatesPath       string
	Output              string
	S3RootUser          string
	S3RootPassword      string
	S3Bucket            string
	S3Region            string
	S3BaseEndpoint      string
	LogLevel            string
	LogFormat           string
}

// LoadDefaults populates Config with development defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = ""
	c.SQLitePath = "requests.db"
	c.ProverURL = "dev"
	c.ProofTimeout = 5 * time.Minute
	c.ProverRetries = 3
	c.ProverRetryBase = 2 * time.Second
	c.ProverRatePerSecond = 1
	c.ProverBurst = 1
	c.KeyMaxTTL = time.Hour
	c.Output = "../test/fixtures/zkemail/valid-proof.json"
	c.S3RootUser = "admin"
	c.S3RootPassword = "secretpassword"
	c.S3Bucket = "fixtures"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.LogLevel = "info"
	c.LogFormat = "json"
}

// LoadConfig builds a Config from os.Args.
func LoadConfig() *Config {
	return Load(os.Args[1:])
}

// Load applies defaults, then the JSON file named by -c/-config (if any),
// then the flags in args. Invalid input panics, as configuration errors are
// only reachable at startup.
func Load(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
