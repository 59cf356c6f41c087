package photo

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/akhmetov/weighbot/bot"
)

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: uint8(x), A: 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := NewService(Options{Dir: t.TempDir(), MaxBytes: 1 << 20, KeepDays: 30})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return s
}

func TestDownloadStoresJPEG(t *testing.T) {
	payload := testJPEG(t, 100, 80)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(payload)
	}))
	defer srv.Close()

	s := newTestService(t)
	path, err := s.Download(context.Background(), srv.URL+"/p.jpg", "79991234567")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Ext(path) != ".jpg" {
		t.Errorf("stored path %q must be .jpg", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("stored file does not decode: %v", err)
	}
	if img.Bounds().Dx() != 100 {
		t.Errorf("small image must keep its size, got %v", img.Bounds())
	}
}

func TestDownloadResizesLargeImage(t *testing.T) {
	payload := testJPEG(t, 4000, 3000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	s := newTestService(t)
	s.maxBytes = 64 << 20
	path, err := s.Download(context.Background(), srv.URL, "79991234567")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("open stored: %v", err)
	}
	if img.Bounds().Dx() > 1920 || img.Bounds().Dy() > 1080 {
		t.Errorf("image not resized: %v", img.Bounds())
	}
}

func TestDownloadTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(bytes.Repeat([]byte{0xFF}, 2048))
	}))
	defer srv.Close()

	s := newTestService(t)
	s.maxBytes = 1024
	_, err := s.Download(context.Background(), srv.URL, "79991234567")
	if !errors.Is(err, bot.ErrMediaTooLarge) {
		t.Fatalf("err = %v, want ErrMediaTooLarge", err)
	}
}

func TestDownloadNotImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("definitely not a picture"))
	}))
	defer srv.Close()

	s := newTestService(t)
	_, err := s.Download(context.Background(), srv.URL, "79991234567")
	if !errors.Is(err, bot.ErrMediaNotImage) {
		t.Fatalf("err = %v, want ErrMediaNotImage", err)
	}
}

func TestDownloadBadRef(t *testing.T) {
	s := newTestService(t)
	for _, ref := range []string{"", "not-a-url", "ftp://example.com/p.jpg"} {
		if _, err := s.Download(context.Background(), ref, "79991234567"); !errors.Is(err, bot.ErrMediaInvalidRef) {
			t.Errorf("ref %q: err = %v, want ErrMediaInvalidRef", ref, err)
		}
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()
	if _, err := s.Download(context.Background(), srv.URL, "79991234567"); !errors.Is(err, bot.ErrMediaInvalidRef) {
		t.Errorf("404: err = %v, want ErrMediaInvalidRef", err)
	}
}

func TestCleanupOld(t *testing.T) {
	s := newTestService(t)

	old := filepath.Join(s.dir, "old.jpg")
	fresh := filepath.Join(s.dir, "fresh.jpg")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	stale := time.Now().Add(-40 * 24 * time.Hour)
	if err := os.Chtimes(old, stale, stale); err != nil {
		t.Fatal(err)
	}

	removed, err := s.CleanupOld(context.Background())
	if err != nil {
		t.Fatalf("CleanupOld: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(old); !errors.Is(err, os.ErrNotExist) {
		t.Error("old photo should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh photo should remain")
	}
}
