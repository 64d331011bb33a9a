// Package cache is the MinIO-backed blob store for raw page content.
// Keys are content-addressed by edition date, publication and URL hash, so
// re-downloading the same page overwrites an identical object.
package cache

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"swvanews/internal/logger"
)

// ErrNotCached reports a cache miss on Get or Stat.
var ErrNotCached = errors.New("object not cached")

// LockoutKey is the well-known object holding the login lockout marker.
const LockoutKey = "locks/login-lockout.json"

// BlobMeta is the metadata sidecar stored with each cached page.
type BlobMeta struct {
	URL         string
	PageNumber  int
	Format      string
	ContentHash string
	CachedAt    string
	Publication string
	Section     string
	Title       string
}

// ObjectCache wraps a MinIO bucket.
type ObjectCache struct {
	client *minio.Client
	bucket string
}

// New connects to MinIO and ensures the bucket exists.
func New(ctx context.Context, rawEndpoint, accessKey, secretKey, bucket string) (*ObjectCache, error) {
	endpoint, secure := ParseEndpoint(rawEndpoint)

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		logger.Info("Created cache bucket", "bucket", bucket)
	}

	return &ObjectCache{client: client, bucket: bucket}, nil
}

// ParseEndpoint normalizes a configured endpoint into host:port plus a TLS
// flag. An explicit scheme decides TLS; otherwise kubernetes service names,
// localhost and .lan hosts are assumed plaintext. A missing port defaults to
// 80 for plaintext and 9000 for TLS.
func ParseEndpoint(raw string) (string, bool) {
	ep := strings.TrimSpace(raw)
	var explicit *bool
	if strings.HasPrefix(ep, "http://") {
		ep = strings.TrimPrefix(ep, "http://")
		v := false
		explicit = &v
	} else if strings.HasPrefix(ep, "https://") {
		ep = strings.TrimPrefix(ep, "https://")
		v := true
		explicit = &v
	}

	host := ep
	port := 0
	if idx := strings.LastIndex(ep, ":"); idx >= 0 {
		if p, err := strconv.Atoi(ep[idx+1:]); err == nil {
			host = ep[:idx]
			port = p
		}
	}

	isK8sSvc := strings.HasSuffix(host, ".svc") || strings.HasSuffix(host, ".svc.cluster.local")
	isLocal := strings.HasPrefix(host, "localhost") || strings.HasSuffix(host, ".lan")

	secure := !(isK8sSvc || isLocal)
	if explicit != nil {
		secure = *explicit
	}
	if port == 0 {
		if secure {
			port = 9000
		} else {
			port = 80
		}
	}
	return fmt.Sprintf("%s:%d", host, port), secure
}

// Key builds the object key for one edition page:
// YYYY-MM-DD/<pub_slug>_page_NNN_<md5(url)[:8]>.<ext>
func Key(editionDate time.Time, pubSlug string, pageNumber int, pageURL, format string) string {
	sum := md5.Sum([]byte(pageURL))
	urlHash := hex.EncodeToString(sum[:])[:8]
	return fmt.Sprintf("%s/%s_page_%03d_%s%s",
		editionDate.Format("2006-01-02"), pubSlug, pageNumber, urlHash,
		ExtensionFor(pageURL, format))
}

// ExtensionFor picks the blob extension from the URL path first, then from
// the declared page format.
func ExtensionFor(pageURL, format string) string {
	if u, err := url.Parse(pageURL); err == nil {
		if strings.HasSuffix(strings.ToLower(u.Path), ".pdf") {
			return ".pdf"
		}
	}
	if format == "pdf" {
		return ".pdf"
	}
	return ".html"
}

// HashContent returns the sha256 hex digest recorded in the sidecar.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Timestamp returns a filesystem-safe UTC timestamp for debug captures.
func Timestamp() string {
	return time.Now().UTC().Format("20060102T150405Z")
}

// Put stores a blob with its metadata sidecar. Writes for the same key are
// full replacements.
func (c *ObjectCache) Put(ctx context.Context, key string, data []byte, meta BlobMeta) error {
	if meta.ContentHash == "" {
		meta.ContentHash = HashContent(data)
	}
	if meta.CachedAt == "" {
		meta.CachedAt = time.Now().UTC().Format(time.RFC3339)
	}

	userMeta := map[string]string{
		"url":          meta.URL,
		"page_number":  strconv.Itoa(meta.PageNumber),
		"format":       meta.Format,
		"content_hash": meta.ContentHash,
		"cached_at":    meta.CachedAt,
	}
	if meta.Publication != "" {
		userMeta["publication"] = meta.Publication
	}
	if meta.Section != "" {
		userMeta["section"] = meta.Section
	}
	if meta.Title != "" {
		userMeta["title"] = meta.Title
	}

	contentType := "text/html; charset=utf-8"
	if strings.HasSuffix(key, ".pdf") {
		contentType = "application/pdf"
	} else if strings.HasSuffix(key, ".json") {
		contentType = "application/json"
	}

	_, err := c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType, UserMetadata: userMeta})
	if err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	logger.Debug("Cached object", "key", key, "bytes", len(data))
	return nil
}

// Get returns the blob for key, or ErrNotCached.
func (c *ObjectCache) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := c.client.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

// Stat returns the metadata sidecar for key, or ErrNotCached.
func (c *ObjectCache) Stat(ctx context.Context, key string) (*BlobMeta, error) {
	info, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}

	meta := &BlobMeta{
		URL:         info.UserMetadata["Url"],
		Format:      info.UserMetadata["Format"],
		ContentHash: info.UserMetadata["Content_hash"],
		CachedAt:    info.UserMetadata["Cached_at"],
		Publication: info.UserMetadata["Publication"],
		Section:     info.UserMetadata["Section"],
		Title:       info.UserMetadata["Title"],
	}
	if n, err := strconv.Atoi(info.UserMetadata["Page_number"]); err == nil {
		meta.PageNumber = n
	}
	return meta, nil
}

// Exists reports whether the key is cached.
func (c *ObjectCache) Exists(ctx context.Context, key string) bool {
	_, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
	return err == nil
}

// ListKeys returns all object keys under the given prefix.
func (c *ObjectCache) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.client.ListObjects(ctx, c.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", obj.Err)
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// ListEditionDates returns the sorted set of YYYY-MM-DD prefixes present in
// the bucket.
func (c *ObjectCache) ListEditionDates(ctx context.Context) ([]string, error) {
	keys, err := c.ListKeys(ctx, "")
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var dates []string
	for _, key := range keys {
		idx := strings.Index(key, "/")
		if idx != 10 {
			continue
		}
		datePart := key[:idx]
		if _, err := time.Parse("2006-01-02", datePart); err != nil {
			continue
		}
		if !seen[datePart] {
			seen[datePart] = true
			dates = append(dates, datePart)
		}
	}
	sort.Strings(dates)
	return dates, nil
}

// CleanupOlderThan removes edition blobs whose date prefix is older than the
// retention window. Objects without a date prefix (locks, debug captures)
// are left alone.
func (c *ObjectCache) CleanupOlderThan(ctx context.Context, days int) (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	keys, err := c.ListKeys(ctx, "")
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range keys {
		idx := strings.Index(key, "/")
		if idx != 10 {
			continue
		}
		objDate, err := time.Parse("2006-01-02", key[:idx])
		if err != nil {
			continue
		}
		if objDate.Before(cutoff) {
			if err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
				logger.Warn("Failed to delete cache object", "key", key, "error", err.Error())
				continue
			}
			deleted++
		}
	}
	logger.Info("Cache cleanup complete", "deleted", deleted, "retention_days", days)
	return deleted, nil
}

// PutDebugCapture stores a best-effort HTML snapshot under the debug prefix
// and returns its key. Failures are not fatal to the caller.
func (c *ObjectCache) PutDebugCapture(ctx context.Context, label string, html []byte) (string, error) {
	key := fmt.Sprintf("debug/login/%s/%s.html", label, Timestamp())
	if err := c.Put(ctx, key, html, BlobMeta{Format: "html"}); err != nil {
		return "", err
	}
	return key, nil
}

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.StatusCode == 404
}
