// Package objectstore is the durable key/value store for published artifacts.
// Keys are slash-separated paths such as "audio/My_Song.mp3".
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"thirdcoast.systems/sonicstream/internal/faults"
)

// ErrNotExist reports an absent key.
var ErrNotExist = errors.New("objectstore: key does not exist")

// Store is implemented by the S3 and filesystem adapters.
type Store interface {
	// Put uploads the file at localPath under key, replacing any object there.
	Put(ctx context.Context, key, localPath string) error
	PutBytes(ctx context.Context, key string, data []byte, contentType string) error
	// Get downloads key into localPath.
	Get(ctx context.Context, key, localPath string) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every key starting with prefix and reports how
	// many were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)
	// SignedReadURL returns a URL that grants read access to key until ttl
	// elapses. It returns ErrNotExist for an absent key.
	SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// CleanKey validates key and returns it in canonical form. Keys may not be
// absolute, empty, or contain parent references.
func CleanKey(key string) (string, error) {
	k := strings.TrimSpace(key)
	if k == "" || strings.HasPrefix(k, "/") || strings.ContainsRune(k, '\\') || strings.ContainsRune(k, 0) {
		return "", faults.BadRequest("objectstore", fmt.Sprintf("invalid key %q", key))
	}
	for _, seg := range strings.Split(k, "/") {
		if seg == ".." || seg == "." {
			return "", faults.BadRequest("objectstore", fmt.Sprintf("invalid key %q", key))
		}
	}
	trailing := strings.HasSuffix(k, "/")
	k = path.Clean(k)
	if trailing {
		k += "/"
	}
	return k, nil
}

// ContentType guesses a MIME type from the key's extension.
func ContentType(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".json":
		return "application/json"
	}
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}
