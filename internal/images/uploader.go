// Package images downloads album cover art and stores it in blob storage
// under a deterministic path, so repeated parses of the same album never
// upload twice.
package images

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/fetch"
	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/storage"
)

// Config bounds what the uploader will accept.
type Config struct {
	// MinSizeBytes rejects tracking pixels and broken thumbnails.
	MinSizeBytes int

	// MaxSizeBytes rejects pathologically large files.
	MaxSizeBytes int

	// Timeout bounds a single download.
	Timeout time.Duration
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		MinSizeBytes: 1 << 10,  // 1 KiB
		MaxSizeBytes: 10 << 20, // 10 MiB
		Timeout:      30 * time.Second,
	}
}

var contentTypeExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Uploader mirrors cover art from distributor sites into blob storage.
type Uploader struct {
	cfg      Config
	provider storage.Provider
	client   *http.Client
	logger   *zap.Logger
}

// NewUploader builds an Uploader on the given storage provider.
func NewUploader(cfg Config, provider storage.Provider, logger *zap.Logger) *Uploader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Uploader{
		cfg:      cfg,
		provider: provider,
		client:   &http.Client{Timeout: cfg.Timeout},
		logger:   logger,
	}
}

// ObjectPath returns the deterministic storage path for an album's cover.
func ObjectPath(code parser.DistributorCode, sku, ext string) string {
	return path.Join("images", string(code), sku+ext)
}

// Mirror downloads the cover at photoURL and stores it for (distributor,
// sku). It returns the storage path, or "" when the image was skipped.
// Every failure is non-fatal: the album event still ships with the
// original URL, so errors are logged and swallowed by the caller.
func (u *Uploader) Mirror(ctx context.Context, code parser.DistributorCode, sku, photoURL string) (string, error) {
	if photoURL == "" || sku == "" {
		return "", nil
	}

	ext := extensionFromURL(photoURL)
	if ext != "" {
		// With a known extension the path is fully determined, so an
		// existing object means a previous run already mirrored it.
		objectName := ObjectPath(code, sku, ext)
		exists, err := u.provider.Exists(ctx, objectName)
		if err != nil {
			return "", fmt.Errorf("check existing cover %s: %w", objectName, err)
		}
		if exists {
			return objectName, nil
		}
	}

	data, sniffedExt, err := u.download(ctx, photoURL)
	if err != nil {
		return "", err
	}
	if ext == "" {
		ext = sniffedExt
	}

	objectName := ObjectPath(code, sku, ext)
	exists, err := u.provider.Exists(ctx, objectName)
	if err != nil {
		return "", fmt.Errorf("check existing cover %s: %w", objectName, err)
	}
	if exists {
		return objectName, nil
	}

	if err := u.provider.Save(ctx, objectName, data); err != nil {
		return "", fmt.Errorf("save cover %s: %w", objectName, err)
	}
	u.logger.Debug("Mirrored album cover",
		zap.String("distributor", string(code)),
		zap.String("sku", sku),
		zap.String("object", objectName))
	return objectName, nil
}

func (u *Uploader) download(ctx context.Context, photoURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build cover request: %w", err)
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download cover %s: %w", photoURL, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download cover %s: HTTP %d", photoURL, resp.StatusCode)
	}

	limit := int64(u.cfg.MaxSizeBytes) + 1
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, "", fmt.Errorf("read cover %s: %w", photoURL, err)
	}
	if len(data) < u.cfg.MinSizeBytes {
		return nil, "", fmt.Errorf("cover %s too small (%d bytes)", photoURL, len(data))
	}
	if u.cfg.MaxSizeBytes > 0 && len(data) > u.cfg.MaxSizeBytes {
		return nil, "", fmt.Errorf("cover %s exceeds %d bytes", photoURL, u.cfg.MaxSizeBytes)
	}

	// Trust the bytes over the URL or Content-Type header.
	contentType := http.DetectContentType(data)
	ext, ok := contentTypeExtensions[contentType]
	if !ok {
		if fetch.IsChallengePage(data) {
			return nil, "", fmt.Errorf("cover %s blocked by anti-bot challenge", photoURL)
		}
		return nil, "", fmt.Errorf("cover %s has unsupported content type %s", photoURL, contentType)
	}
	return data, ext, nil
}

func extensionFromURL(photoURL string) string {
	base := photoURL
	if i := strings.IndexAny(base, "?#"); i >= 0 {
		base = base[:i]
	}
	ext := strings.ToLower(path.Ext(base))
	switch ext {
	case ".jpg", ".jpeg":
		return ".jpg"
	case ".png", ".gif", ".webp":
		return ext
	}
	return ""
}
