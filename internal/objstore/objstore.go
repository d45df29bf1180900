// Package objstore abstracts the object storage that holds raw recording
// files. Production uses a MinIO-backed client; tests use MemoryStore.
package objstore

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strings"
)

// Store lists and fetches raw recording objects. Implementations must return
// readers that the caller closes; Get performs no retries of its own.
type Store interface {
	// List returns the keys under prefix in lexicographic order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)

	// Get opens the named object for reading. The caller must close the
	// returned reader on every exit path.
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// ParseURL splits an s3://bucket/key URL into bucket and key. Only the s3
// scheme is accepted.
func ParseURL(rawLocation string) (bucket, key string, err error) {
	u, err := url.Parse(rawLocation)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse object URL %q: %w", rawLocation, err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("not an s3 url: %q", rawLocation)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// chunkSuffix matches the trailing _NNNNNN.ext chunk-sequence suffix that the
// collectors append to each file of a session, e.g.
// 20251126_165513_M001_anomaly_normal_000001.jsonl.
var chunkSuffix = regexp.MustCompile(`^(.*)_\d{6}\.[^.]+$`)

// SessionPrefix derives the listing prefix that groups all chunked recording
// files belonging to one session. The trailing _NNNNNN.ext suffix is stripped
// (keeping the final underscore); keys that do not follow the chunked naming
// convention fall back to their parent directory plus a trailing separator.
func SessionPrefix(key string) string {
	if m := chunkSuffix.FindStringSubmatch(key); m != nil {
		return m[1] + "_"
	}
	if idx := strings.LastIndex(key, "/"); idx >= 0 {
		return key[:idx+1]
	}
	return ""
}
