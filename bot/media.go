package bot

import (
	"context"
	"errors"
)

// Media download failures the engine maps to user prompts. A downloader
// implementation wraps its own causes around these sentinels.
var (
	// ErrMediaInvalidRef means the media reference could not be fetched.
	ErrMediaInvalidRef = errors.New("media: invalid reference")
	// ErrMediaTooLarge means the file exceeds the configured size cap.
	ErrMediaTooLarge = errors.New("media: file too large")
	// ErrMediaNotImage means the downloaded bytes are not a decodable image.
	ErrMediaNotImage = errors.New("media: not an image")
)

// MediaDownloader fetches a report photo by its transport reference and
// stores it locally, returning the stored path.
type MediaDownloader interface {
	Download(ctx context.Context, ref, identity string) (string, error)
}
