package app

import (
	"strings"

	"github.com/dmitrijs2005/emailproof/internal/config"
	"github.com/dmitrijs2005/emailproof/internal/prover"
)

func noClose() error { return nil }

// newBackend selects the proving backend named by the prover URL:
// "dev" (or empty) runs in-process, grpc://host:port dials gRPC, anything
// else is an HTTP base URL.
func newBackend(c *config.Config) (prover.Backend, func() error, error) {
	switch {
	case c.ProverURL == "" || c.ProverURL == "dev":
		return prover.NewDevBackend(), noClose, nil
	case strings.HasPrefix(c.ProverURL, "grpc://"):
		b, err := prover.NewGRPCBackend(strings.TrimPrefix(c.ProverURL, "grpc://"), c.ProverTokenID, c.ProverTokenSecret)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	default:
		return prover.NewHTTPBackend(c.ProverURL, c.ProverTokenID, c.ProverTokenSecret, nil), noClose, nil
	}
}

func coordinatorConfig(c *config.Config) prover.Config {
	retries := c.ProverRetries
	if retries < 0 {
		retries = 0
	}
	return prover.Config{
		Timeout:       c.ProofTimeout,
		MaxRetries:    uint64(retries),
		RetryBase:     c.ProverRetryBase,
		RatePerSecond: c.ProverRatePerSecond,
		Burst:         c.ProverBurst,
	}
}
