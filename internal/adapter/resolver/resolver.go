// Package resolver maps asset identifiers and remote URLs to local files the player can open.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"golang.org/x/sync/singleflight"

	"github.com/tejashwikalptaru/mantra/internal/domain"
	"github.com/tejashwikalptaru/mantra/internal/ports"
)

// assetExtensions are tried, in order, for identifiers without an extension.
var assetExtensions = []string{".mp3", ".m4a", ".wav"}

// Config holds the resolver settings.
type Config struct {
	// AssetDir holds bundled assets, looked up by identifier
	AssetDir string

	// CacheDir receives downloaded remote assets
	CacheDir string

	// DownloadTimeout bounds a single download (zero means no deadline)
	DownloadTimeout time.Duration
}

// Resolver resolves, in order: file:// URIs and existing paths, http(s) URLs (downloaded
// once into the cache), and logical identifiers looked up in the asset directory.
//
// Thread-safety: This implementation is thread-safe. Concurrent requests for the same URL
// share one download.
type Resolver struct {
	logger    *slog.Logger
	cfg       Config
	client    *http.Client
	downloads singleflight.Group
}

// New creates a resolver. A nil client uses http.DefaultClient.
func New(logger *slog.Logger, cfg Config, client *http.Client) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{
		logger: logger,
		cfg:    cfg,
		client: client,
	}
}

// Resolve returns a local path for identifier.
func (r *Resolver) Resolve(ctx context.Context, identifier string, kind domain.AssetKind) (string, error) {
	if identifier == "" {
		return "", fmt.Errorf("%w: empty %s identifier", domain.ErrAssetNotFound, kind)
	}

	switch {
	case strings.HasPrefix(identifier, "file://"):
		p := strings.TrimPrefix(identifier, "file://")
		if !fileExists(p) {
			return "", fmt.Errorf("%w: %s", domain.ErrAssetNotFound, identifier)
		}
		return p, nil

	case strings.HasPrefix(identifier, "http://"), strings.HasPrefix(identifier, "https://"):
		return r.download(ctx, identifier, kind)

	case fileExists(identifier):
		return identifier, nil
	}

	if p, ok := r.lookup(identifier, kind); ok {
		return p, nil
	}

	return "", fmt.Errorf("%w: %s %q", domain.ErrAssetNotFound, kind, identifier)
}

// lookup searches the asset directory, first under a folder named after kind.
func (r *Resolver) lookup(identifier string, kind domain.AssetKind) (string, bool) {
	if r.cfg.AssetDir == "" {
		return "", false
	}

	names := []string{identifier}
	if filepath.Ext(identifier) == "" {
		names = names[:0]
		for _, ext := range assetExtensions {
			names = append(names, identifier+ext)
		}
	}

	for _, dir := range []string{filepath.Join(r.cfg.AssetDir, string(kind)), r.cfg.AssetDir} {
		for _, name := range names {
			candidate := filepath.Join(dir, name)
			if fileExists(candidate) {
				return candidate, true
			}
		}
	}
	return "", false
}

// download fetches rawURL into the cache unless it is already there.
func (r *Resolver) download(ctx context.Context, rawURL string, kind domain.AssetKind) (string, error) {
	if r.cfg.CacheDir == "" {
		return "", fmt.Errorf("%w: no cache directory for %s", domain.ErrAssetNotFound, rawURL)
	}

	target := filepath.Join(r.cfg.CacheDir, cacheName(rawURL))
	if fileExists(target) {
		r.logger.Debug("asset cache hit", slog.String("url", rawURL), slog.String("path", target))
		return target, nil
	}

	// The flight outlives any single caller; DownloadTimeout bounds it
	flight := r.downloads.DoChan(target, func() (any, error) {
		return target, r.fetch(context.WithoutCancel(ctx), rawURL, target)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-flight:
		if res.Err != nil {
			return "", res.Err
		}
		r.logger.Info("asset downloaded",
			slog.String("kind", string(kind)),
			slog.String("url", rawURL),
			slog.Bool("shared", res.Shared))
		return res.Val.(string), nil
	}
}

func (r *Resolver) fetch(ctx context.Context, rawURL, target string) error {
	if r.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DownloadTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrAssetNotFound, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: download %s: %s", domain.ErrAssetNotFound, rawURL, resp.Status)
	}

	if err := os.MkdirAll(r.cfg.CacheDir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(r.cfg.CacheDir, "download-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download %s: %w", rawURL, err)
	}

	if err := validateAudio(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("download %s: %w", rawURL, err)
	}

	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

// validateAudio rejects downloads that are empty or carry tags of a non-audio container.
func validateAudio(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: empty file", domain.ErrUnsupportedFormat)
	}
	// Identify probes for an ID3v1 trailer 128 bytes from the end
	if info.Size() < 128 {
		return nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, _, err := tag.Identify(f); err != nil && !errors.Is(err, tag.ErrNoTagsFound) {
		return fmt.Errorf("%w: %w", domain.ErrUnsupportedFormat, err)
	}
	return nil
}

// cacheName derives a stable file name from a URL, keeping its extension.
func cacheName(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	name := hex.EncodeToString(sum[:12])

	ext := ".mp3"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return name + ext
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// Verify that Resolver implements the AssetResolver interface
var _ ports.AssetResolver = (*Resolver)(nil)
