// Package artifacts writes generated fixtures to a local file or to an
// S3-compatible object store.
package artifacts

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/emailproof/internal/filex"
)

// Sink stores one artifact.
type Sink interface {
	Write(ctx context.Context, data []byte) error
	// Location names where the artifact ends up, for logging.
	Location() string
}

// FileSink writes to a path, creating parent directories as needed.
type FileSink struct {
	Path string
}

func (s FileSink) Write(_ context.Context, data []byte) error {
	return filex.WriteFileAtomic(s.Path, data, 0o644)
}

func (s FileSink) Location() string { return s.Path }

// ForOutput picks the sink for an output location: s3://bucket/key selects S3,
// s3:///key uses cfg.Bucket, anything else is a file path.
func ForOutput(ctx context.Context, output string, cfg S3Config) (Sink, error) {
	if !strings.HasPrefix(output, "s3://") {
		if output == "" {
			return nil, fmt.Errorf("empty output path")
		}
		return FileSink{Path: output}, nil
	}

	u, err := url.Parse(output)
	if err != nil {
		return nil, fmt.Errorf("parse output %q: %w", output, err)
	}
	bucket := u.Host
	if bucket == "" {
		bucket = cfg.Bucket
	}
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("output %q must be s3://bucket/key", output)
	}
	return NewS3Sink(ctx, cfg, bucket, key)
}
