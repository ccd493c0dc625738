// Package fonts guarantees a glyph-complete CJK font file is available on
// disk before any PDF is produced. The font is downloaded once and reused by
// every render call afterwards.
package fonts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrFontUnavailable wraps any provisioning failure (network or filesystem).
// PDF rendering is impossible without the font, so callers surface this as
// the render error.
var ErrFontUnavailable = errors.New("CJK font unavailable")

const (
	// DefaultFontName is the family name the font is registered under.
	DefaultFontName = "NotoSansSC"

	defaultFontFile    = "NotoSansSC-Regular.ttf"
	defaultDownloadURL = "https://github.com/googlefonts/noto-cjk/raw/main/Sans/SubsetOTF/SC/NotoSansSC-Regular.ttf"
	downloadTimeout    = 120 * time.Second
)

// Provisioner lazily materializes the font file. It is safe for concurrent
// use; the file is read-only once provisioned.
type Provisioner struct {
	dir        string
	url        string
	httpClient *http.Client

	mu sync.Mutex
}

// New creates a Provisioner that stores the font under dir.
func New(dir string) *Provisioner {
	return &Provisioner{
		dir: dir,
		url: defaultDownloadURL,
		httpClient: &http.Client{
			Timeout: downloadTimeout,
		},
	}
}

// NewWithURL creates a Provisioner downloading from a custom URL (for testing).
func NewWithURL(dir, url string) *Provisioner {
	p := New(dir)
	p.url = url
	return p
}

// Path returns the location the font file lives at once provisioned.
func (p *Provisioner) Path() string {
	return filepath.Join(p.dir, defaultFontFile)
}

// Ensure returns the font path, downloading the file first if it is not
// already cached. When the file exists the call is idempotent and performs
// no network access.
func (p *Provisioner) Ensure(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.Path()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: creating font directory: %v", ErrFontUnavailable, err)
	}

	if err := p.download(ctx, path); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFontUnavailable, err)
	}

	return path, nil
}

// download fetches the font to a temp file and renames it into place, so a
// partial download never poses as a valid font.
func (p *Provisioner) download(ctx context.Context, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("downloading font: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading font: HTTP %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(p.dir, defaultFontFile+".*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing font file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing font file: %w", err)
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("moving font into place: %w", err)
	}
	return nil
}
