package objectstore

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"thirdcoast.systems/sonicstream/internal/faults"
)

// MinSigningKeyLen is the shortest accepted URL signing key.
const MinSigningKeyLen = 16

// FS stores objects as files under Root. Signed URLs point at BaseURL and
// carry an expiry plus a keyed BLAKE2b MAC that Verify checks.
type FS struct {
	Root       string
	BaseURL    string
	SigningKey []byte
	// Now is used for signing and verification. Nil means time.Now.
	Now func() time.Time
}

// NewFS creates root if needed.
func NewFS(root, baseURL string, signingKey []byte) (*FS, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("objectstore: root directory is required")
	}
	if len(signingKey) < MinSigningKeyLen || len(signingKey) > blake2b.Size {
		return nil, fmt.Errorf("objectstore: signing key must be %d to %d bytes", MinSigningKeyLen, blake2b.Size)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create root: %w", err)
	}
	return &FS{Root: root, BaseURL: strings.TrimRight(baseURL, "/"), SigningKey: signingKey}, nil
}

func (s *FS) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *FS) path(key string) (string, string, error) {
	k, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return k, filepath.Join(s.Root, filepath.FromSlash(k)), nil
}

func (s *FS) Put(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, dst, err := s.path(key)
	if err != nil {
		return err
	}
	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("objectstore: open %s: %w", localPath, err)
	}
	defer src.Close()
	return writeAtomic(dst, src)
}

func (s *FS) PutBytes(ctx context.Context, key string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, dst, err := s.path(key)
	if err != nil {
		return err
	}
	return writeAtomic(dst, bytes.NewReader(data))
}

// writeAtomic writes to a temp file beside dst and renames it into place so
// readers never see a partial object.
func writeAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("objectstore: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return fmt.Errorf("objectstore: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: write %s: %w", dst, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: close %s: %w", dst, err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("objectstore: rename %s: %w", dst, err)
	}
	return nil
}

func (s *FS) Get(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, src, err := s.path(key)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotExist, k)
		}
		return err
	}
	defer in.Close()
	return writeAtomic(localPath, in)
}

func (s *FS) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k, src, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(src)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, k)
	}
	return data, err
}

func (s *FS) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, p, err := s.path(key)
	if err != nil {
		return false, err
	}
	fi, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !fi.IsDir(), nil
}

func (s *FS) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("objectstore: delete %s: %w", key, err)
	}
	return nil
}

func (s *FS) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	k, err := CleanKey(prefix)
	if err != nil {
		return 0, err
	}

	// Walk the deepest directory that can contain matches.
	dirKey := k
	if !strings.HasSuffix(dirKey, "/") {
		dirKey = pathDir(k)
	}
	dir := filepath.Join(s.Root, filepath.FromSlash(dirKey))

	removed := 0
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Root, p)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(filepath.ToSlash(rel), k) {
			return nil
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("objectstore: delete prefix %s: %w", prefix, err)
	}

	if strings.HasSuffix(k, "/") {
		_ = os.RemoveAll(dir)
	}
	return removed, nil
}

func pathDir(key string) string {
	idx := strings.LastIndexByte(key, '/')
	if idx < 0 {
		return ""
	}
	return key[:idx+1]
}

func (s *FS) SignedReadURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	ok, err := s.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	k, _ := CleanKey(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotExist, k)
	}
	if ttl <= 0 {
		return "", faults.BadRequest("objectstore", "signed url ttl must be positive")
	}

	expires := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expires, 10))
	sig, err := s.sign(k, expires)
	if err != nil {
		return "", err
	}
	q.Set("signature", sig)

	escaped := (&url.URL{Path: "/" + k}).EscapedPath()
	return s.BaseURL + escaped + "?" + q.Encode(), nil
}

// Verify checks a signature produced by SignedReadURL.
func (s *FS) Verify(key, expires, signature string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return faults.BadRequest("objectstore", "invalid expiry")
	}
	if s.now().Unix() > exp {
		return faults.BadRequest("objectstore", "signed url expired")
	}
	want, err := s.sign(k, exp)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(signature)) != 1 {
		return faults.BadRequest("objectstore", "signature mismatch")
	}
	return nil
}

func (s *FS) sign(key string, expires int64) (string, error) {
	mac, err := blake2b.New256(s.SigningKey)
	if err != nil {
		return "", fmt.Errorf("objectstore: signing key: %w", err)
	}
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(strconv.FormatInt(expires, 10)))
	return hex.EncodeToString(mac.Sum(nil)), nil
}

var _ Store = (*FS)(nil)
