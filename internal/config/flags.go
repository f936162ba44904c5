package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/emailproof/internal/flagx"
)

var configFlags = []string{
	"-d", "-q", "-p", "-k", "-s", "-t", "-r", "-m", "-T", "-o",
	"-u", "-w", "-b", "-g", "-e", "-l",
}

// parseFlags populates Config from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   PostgreSQL DSN (empty: SQLite)
//	-q string   SQLite database file
//	-p string   prover URL ("dev", grpc://host:port or http(s)://...)
//	-k string   prover token id
//	-s string   prover token secret
//	-t int      proof timeout, seconds
//	-r int      prover retries on transient failure
//	-m int      DKIM key max TTL, minutes
//	-T string   command templates JSON file
//	-o string   output path, s3://bucket/key, or s3:///key (bucket from -b)
//	-u string   S3 root user
//	-w string   S3 root password
//	-b string   S3 bucket used when -o names no bucket
//	-g string   S3 region
//	-e string   S3 base endpoint
//	-l string   log level
//
// Arguments not in this set are filtered out first so other flag sets can
// share the same argument list.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SQLitePath, "q", config.SQLitePath, "sqlite database file")
	fs.StringVar(&config.ProverURL, "p", config.ProverURL, "prover URL")
	fs.StringVar(&config.ProverTokenID, "k", config.ProverTokenID, "prover token id")
	fs.StringVar(&config.ProverTokenSecret, "s", config.ProverTokenSecret, "prover token secret")

	proofTimeout := fs.Int("t", int(config.ProofTimeout.Seconds()), "proof timeout (in seconds)")
	fs.IntVar(&config.ProverRetries, "r", config.ProverRetries, "prover retries")
	keyMaxTTL := fs.Int("m", int(config.KeyMaxTTL.Minutes()), "dkim key max ttl (in minutes)")

	fs.StringVar(&config.TemplatesPath, "T", config.TemplatesPath, "command templates file")
	fs.StringVar(&config.Output, "o", config.Output, "output path or s3://bucket/key")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "w", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(flagx.FilterArgs(args, configFlags)); err != nil {
		panic(err)
	}

	// Only flags that were given replace durations loaded from JSON, which
	// may carry sub-second or sub-minute precision.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "t":
			config.ProofTimeout = time.Duration(*proofTimeout) * time.Second
		case "m":
			config.KeyMaxTTL = time.Duration(*keyMaxTTL) * time.Minute
		}
	})
}
