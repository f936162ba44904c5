package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expected    func() *Config
		expectPanic bool
	}{
		{
			name: "all flags",
			args: []string{
				"-d", "postgres://db", "-q", "local.db", "-p", "grpc://prover:50051",
				"-k", "tok-id", "-s", "tok-secret", "-t", "120", "-r", "5", "-m", "10",
				"-T", "templates.json", "-o", "s3://bucket/out.json",
				"-u", "user", "-w", "password", "-b", "bucket", "-g", "us-west-1",
				"-e", "http://endpoint", "-l", "debug",
			},
			expected: func() *Config {
				return &Config{
					DatabaseDSN:       "postgres://db",
					SQLitePath:        "local.db",
					ProverURL:         "grpc://prover:50051",
					ProverTokenID:     "tok-id",
					ProverTokenSecret: "tok-secret",
					ProofTimeout:      120 * time.Second,
					ProverRetries:     5,
					ProverRetryBase:   0,
					KeyMaxTTL:         10 * time.Minute,
					TemplatesPath:     "templates.json",
					Output:            "s3://bucket/out.json",
					S3RootUser:        "user",
					S3RootPassword:    "password",
					S3Bucket:          "bucket",
					S3Region:          "us-west-1",
					S3BaseEndpoint:    "http://endpoint",
					LogLevel:          "debug",
				}
			},
		},
		{
			name: "foreign flags are ignored",
			args: []string{"-S", "0xabc", "-H", "0x01", "-p", "dev"},
			expected: func() *Config {
				return &Config{ProverURL: "dev"}
			},
		},
		{
			name:        "bad int panics",
			args:        []string{"-t", "soon"},
			expectPanic: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}

			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(config, tt.args) })
				return
			}

			require.NotPanics(t, func() { parseFlags(config, tt.args) })
			assert.Empty(t, cmp.Diff(tt.expected(), config))
		})
	}
}
