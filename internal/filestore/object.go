package filestore

import (
	"io"
	"path"
	"strings"
	"time"

	"github.com/koustreak/tablekit/internal/errs"
)

// ObjectInfo describes a single object stored in a bucket.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"` // -1 if unknown
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
	IsDir        bool      `json:"is_dir,omitempty"`
}

// Name returns the last path element of the key.
func (o ObjectInfo) Name() string {
	return path.Base(o.Key)
}

// Object is a streaming handle to an object's content.
// The caller MUST call Close() after reading to avoid resource leaks.
type Object interface {
	io.ReadCloser

	// Info returns the metadata for this object.
	Info() *ObjectInfo
}

// ListOptions controls how ListObjects filters results.
type ListOptions struct {
	Prefix    string
	Recursive bool
	Limit     int // 0 means no limit
}

// ParseLocation splits "bucket/key/with/slashes" into bucket and key.
// A bare key uses defaultBucket.
func ParseLocation(loc, defaultBucket string) (bucket, key string, err error) {
	loc = strings.TrimPrefix(loc, "/")
	if b, k, ok := strings.Cut(loc, "/"); ok && b != "" && k != "" {
		return b, k, nil
	}
	if defaultBucket == "" || loc == "" {
		return "", "", errs.Newf(errs.ErrKindInvalidInput, "object location %q must be bucket/key", loc)
	}
	return defaultBucket, loc, nil
}
