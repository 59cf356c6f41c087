// Package photo downloads report photos from the messaging gateway, verifies
// and normalizes them, and stores them under the media directory.
package photo

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/akhmetov/weighbot/bot"
	"github.com/akhmetov/weighbot/core/logger"
)

// Stored photos are bounded to full-HD and re-encoded as JPEG.
const (
	maxWidth    = 1920
	maxHeight   = 1080
	jpegQuality = 85
)

// Options configures the photo service.
type Options struct {
	// Dir is the storage directory, created if missing.
	Dir string
	// MaxBytes caps the accepted download size.
	MaxBytes int64
	// KeepDays is the retention period for stored photos.
	KeepDays int

	HTTPTimeout time.Duration
}

// Service implements the engine's media downloader over HTTP.
type Service struct {
	dir      string
	maxBytes int64
	keep     time.Duration
	http     *http.Client
	now      func() time.Time
}

// NewService prepares the storage directory and builds the service.
func NewService(opts Options) (*Service, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("photo: storage directory is required")
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 10 << 20
	}
	if opts.KeepDays <= 0 {
		opts.KeepDays = 30
	}
	if opts.HTTPTimeout <= 0 {
		opts.HTTPTimeout = 30 * time.Second
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("photo: create storage dir: %w", err)
	}
	return &Service{
		dir:      opts.Dir,
		maxBytes: opts.MaxBytes,
		keep:     time.Duration(opts.KeepDays) * 24 * time.Hour,
		http:     &http.Client{Timeout: opts.HTTPTimeout},
		now:      time.Now,
	}, nil
}

// Download fetches the photo by its gateway URL, verifies it decodes as an
// image, shrinks it to fit the size bound and stores it as JPEG. It returns
// the stored file path.
func (s *Service) Download(ctx context.Context, ref, identity string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("photo: bad url %q: %w", logger.SanitizeLimit(ref, 128), bot.ErrMediaInvalidRef)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return "", fmt.Errorf("photo: build request: %w", bot.ErrMediaInvalidRef)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("photo: fetch: %v: %w", err, bot.ErrMediaInvalidRef)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("photo: fetch status %d: %w", resp.StatusCode, bot.ErrMediaInvalidRef)
	}
	if resp.ContentLength > s.maxBytes {
		return "", fmt.Errorf("photo: declared %d bytes: %w", resp.ContentLength, bot.ErrMediaTooLarge)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("photo: read body: %v: %w", err, bot.ErrMediaInvalidRef)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("photo: over %d bytes: %w", s.maxBytes, bot.ErrMediaTooLarge)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("photo: decode: %v: %w", err, bot.ErrMediaNotImage)
	}

	bounds := img.Bounds()
	if bounds.Dx() > maxWidth || bounds.Dy() > maxHeight {
		img = imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
	}

	name := fmt.Sprintf("%s_%d.jpg", sanitizeIdentity(identity), s.now().UnixNano())
	path := filepath.Join(s.dir, name)
	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		return "", fmt.Errorf("photo: save %s: %w", name, err)
	}

	logger.MEDIA.Info("photo stored",
		slog.String("event", "media.stored"),
		slog.String("identity", identity),
		slog.String("media", name),
		slog.Int("payload", len(data)),
	)
	return path, nil
}

// CleanupOld removes stored photos older than the retention period and
// returns how many were deleted.
func (s *Service) CleanupOld(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("photo: read storage dir: %w", err)
	}

	cutoff := s.now().Add(-s.keep)
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jpg") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			logger.MEDIA.Warn("cleanup remove failed",
				slog.String("event", "media.cleanup.fail"),
				slog.String("media", e.Name()),
				slog.String("err", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		logger.MEDIA.Info("old photos removed",
			slog.String("event", "media.cleanup"),
			slog.Int("files", removed),
		)
	}
	return removed, nil
}

// RunCleanup deletes aged photos on the interval until the context ends.
func (s *Service) RunCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CleanupOld(ctx); err != nil && ctx.Err() == nil {
				logger.MEDIA.Error("cleanup pass failed",
					slog.String("event", "media.cleanup.fail"),
					slog.String("err", err.Error()),
				)
			}
		}
	}
}

// sanitizeIdentity keeps file names to a safe charset.
func sanitizeIdentity(identity string) string {
	var b strings.Builder
	for _, r := range identity {
		if r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
