package imagecache

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ftrvxmtrx/tga"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Fetcher loads and decodes the image behind a source key.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (image.Image, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, key string) (image.Image, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, key string) (image.Image, error) {
	return f(ctx, key)
}

// Decode decodes any registered format: PNG, JPEG, GIF, BMP, TIFF, WebP, TGA.
func Decode(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imagecache: decode: %w", err)
	}
	return img, nil
}

// FileFetcher reads local files. Relative paths resolve against Root.
type FileFetcher struct {
	Root string
}

// Fetch opens and decodes a file path or file:// URL.
func (f FileFetcher) Fetch(ctx context.Context, key string) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := strings.TrimPrefix(key, "file://")
	if !filepath.IsAbs(path) && f.Root != "" {
		path = filepath.Join(f.Root, path)
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imagecache: open %s: %w", path, err)
	}
	defer file.Close()
	return Decode(file)
}

// DefaultMaxBytes caps an HTTP image body when HTTPFetcher.MaxBytes is 0.
const DefaultMaxBytes int64 = 256 << 20

// ErrTooLarge is returned when a response body exceeds the fetcher's cap.
var ErrTooLarge = errors.New("imagecache: response body too large")

// HTTPFetcher downloads http and https sources.
type HTTPFetcher struct {
	Client   *http.Client
	Timeout  time.Duration
	MaxBytes int64
}

// Fetch downloads and decodes a URL.
func (f HTTPFetcher) Fetch(ctx context.Context, key string) (image.Image, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, fmt.Errorf("imagecache: request %s: %w", key, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagecache: get %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagecache: get %s: status %s", key, resp.Status)
	}
	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	if resp.ContentLength > limit {
		return nil, fmt.Errorf("imagecache: get %s: %d bytes: %w", key, resp.ContentLength, ErrTooLarge)
	}
	body := &cappedReader{r: io.LimitReader(resp.Body, limit+1), limit: limit}
	img, err := Decode(body)
	if body.n > limit {
		return nil, fmt.Errorf("imagecache: get %s: over %d bytes: %w", key, limit, ErrTooLarge)
	}
	return img, err
}

// cappedReader fails once more than limit bytes have been read.
type cappedReader struct {
	r     io.Reader
	limit int64
	n     int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		return n, ErrTooLarge
	}
	return n, err
}

// Router dispatches on the source key's scheme. Keys with the "asset:"
// prefix go to Assets (a cloud-drive collaborator); http(s) URLs go to
// HTTP; everything else is a file.
type Router struct {
	Files  Fetcher
	HTTP   Fetcher
	Assets Fetcher
}

// NewRouter returns a router with file and HTTP fetchers and no asset
// resolver.
func NewRouter(root string) *Router {
	return &Router{
		Files: FileFetcher{Root: root},
		HTTP:  HTTPFetcher{Timeout: 30 * time.Second},
	}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, key string) (image.Image, error) {
	var f Fetcher
	switch {
	case strings.HasPrefix(key, "asset:"):
		f = r.Assets
		key = strings.TrimPrefix(key, "asset:")
	case strings.HasPrefix(key, "http://"), strings.HasPrefix(key, "https://"):
		f = r.HTTP
	default:
		f = r.Files
	}
	if f == nil {
		return nil, fmt.Errorf("imagecache: no fetcher for %q", key)
	}
	return f.Fetch(ctx, key)
}
