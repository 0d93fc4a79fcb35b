package update

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/adamancini/hatch/internal/checksum"
	"github.com/adamancini/hatch/internal/failure"
	"github.com/adamancini/hatch/internal/progress"
)

// maxBufferSize bounds DownloadToBuffer.
const maxBufferSize = 64 << 20

// HTTPDownloader downloads files over HTTP
type HTTPDownloader struct {
	client *http.Client
	logger *log.Logger
}

// DownloaderOption configures an HTTPDownloader.
type DownloaderOption func(*HTTPDownloader)

// WithClient sets the HTTP client.
func WithClient(c *http.Client) DownloaderOption {
	return func(d *HTTPDownloader) {
		if c != nil {
			d.client = c
		}
	}
}

// WithDownloadLogger sets the logger.
func WithDownloadLogger(l *log.Logger) DownloaderOption {
	return func(d *HTTPDownloader) { d.logger = l }
}

// NewHTTPDownloader creates a new HTTP downloader
func NewHTTPDownloader(opts ...DownloaderOption) *HTTPDownloader {
	d := &HTTPDownloader{
		client: &http.Client{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "download"})
	}
	return d
}

func (d *HTTPDownloader) get(ctx context.Context, url string, opts Options) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, failure.Configuration("download", err)
	}
	for k, vs := range opts.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.Network("download", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, failure.Network("download", fmt.Errorf("GET %s returned status %d", url, resp.StatusCode))
	}
	return resp, nil
}

// Download streams url into a temp file beside dest, verifies it and
// renames it to dest. On failure dest is left untouched.
func (d *HTTPDownloader) Download(ctx context.Context, url, dest string, opts Options) error {
	resp, err := d.get(ctx, url, opts)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	dir, base := filepath.Split(dest)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, "."+base+".*.download")
	if err != nil {
		return failure.Process("download", fmt.Errorf("create temp file: %w", err))
	}
	published := false
	defer func() {
		if !published {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	h := checksum.New()
	tracker := progress.NewTracker(resp.ContentLength, opts.Observer)
	n, err := io.Copy(io.MultiWriter(tmp, h, tracker.Writer()), resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return failure.Network("download", fmt.Errorf("read body of %s: %w", url, err))
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return failure.Network("download", fmt.Errorf("short body from %s: got %d of %d bytes", url, n, resp.ContentLength))
	}

	if opts.ExpectedChecksum != "" {
		if err := checksum.Verify(dest, opts.ExpectedChecksum, fmt.Sprintf("%x", h.Sum(nil))); err != nil {
			d.reject(tmp, opts.RejectedPath)
			published = opts.RejectedPath != ""
			return failure.Verification("download", err)
		}
	}

	if err := tmp.Sync(); err != nil {
		return failure.Process("download", err)
	}
	if err := tmp.Close(); err != nil {
		return failure.Process("download", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return failure.Process("download", fmt.Errorf("publish %s: %w", base, err))
	}
	published = true

	d.logger.Debug("downloaded", "url", url, "dest", dest, "bytes", n)
	return nil
}

// reject moves a download that failed verification to path so it can be
// inspected. It never lands under the final name.
func (d *HTTPDownloader) reject(tmp *os.File, path string) {
	if path == "" {
		return
	}
	_ = tmp.Close()
	if err := os.Rename(tmp.Name(), path); err != nil {
		d.logger.Warn("cannot keep rejected download", "path", path, "err", err)
		_ = os.Remove(tmp.Name())
		return
	}
	d.logger.Warn("checksum mismatch, kept download for inspection", "path", path)
}

// DownloadToBuffer returns the body of url, verified when
// ExpectedChecksum is set.
func (d *HTTPDownloader) DownloadToBuffer(ctx context.Context, url string, opts Options) ([]byte, error) {
	resp, err := d.get(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	tracker := progress.NewTracker(resp.ContentLength, opts.Observer)
	n, err := io.Copy(io.MultiWriter(&buf, tracker.Writer()), io.LimitReader(resp.Body, maxBufferSize+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, failure.Network("download", fmt.Errorf("read body of %s: %w", url, err))
	}
	if n > maxBufferSize {
		return nil, failure.Network("download", fmt.Errorf("body of %s exceeds %d bytes", url, maxBufferSize))
	}

	if opts.ExpectedChecksum != "" {
		if err := checksum.Verify(url, opts.ExpectedChecksum, checksum.Bytes(buf.Bytes())); err != nil {
			return nil, failure.Verification("download", err)
		}
	}
	return buf.Bytes(), nil
}
