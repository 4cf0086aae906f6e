// Package hls downloads a segmented HLS stream into a single video file.
package hls

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"github.com/schollz/progressbar/v3"

	"github.com/sebastianrcnt/learnus-bot/worker"
)

const DefaultConcurrency = 5

var (
	ErrEncryptedStream = errors.New("encrypted streams are not supported")
	ErrEmptyPlaylist   = errors.New("playlist has no segments")
)

// RemuxFunc rewrites the concatenated MPEG-TS file at src into dst.
type RemuxFunc func(ctx context.Context, src, dst string) error

// Downloader fetches every segment of a media playlist concurrently and
// stitches them together in playlist order.
type Downloader struct {
	Client      *http.Client
	Concurrency int
	Logger      *log.Logger
	// Progress receives the per-file segment bar. Nil hides it.
	Progress io.Writer
	// Remux is applied to the joined segments. Nil keeps the raw MPEG-TS bytes.
	Remux RemuxFunc
	// TempDir holds segments while downloading. Empty means next to the destination.
	TempDir string
}

// NewDownloader returns a Downloader that remuxes with ffmpeg when available.
func NewDownloader(logger *log.Logger, concurrency int) *Downloader {
	if logger == nil {
		logger = log.New(os.Stdout, "[HLS] ", log.LstdFlags)
	}
	remux := FFmpegRemux()
	if remux == nil {
		logger.Println("ffmpeg not found on PATH, keeping MPEG-TS output")
	}
	return &Downloader{
		Client:      &http.Client{Timeout: 2 * time.Minute},
		Concurrency: concurrency,
		Logger:      logger,
		Progress:    os.Stderr,
		Remux:       remux,
	}
}

type segment struct {
	Index int
	URL   string
}

func (s segment) String() string { return fmt.Sprintf("segment %d", s.Index) }

// Download saves the stream behind manifestURL at dest. An existing dest is
// left untouched and nothing is fetched.
func (d *Downloader) Download(ctx context.Context, manifestURL, dest string) error {
	exists, err := Exists(dest)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", dest, err)
	}
	if exists {
		d.Logger.Printf("File already exists: %s", dest)
		return nil
	}

	segments, err := d.resolveSegments(ctx, manifestURL)
	if err != nil {
		return err
	}
	d.Logger.Printf("Downloading %d segments to %s", len(segments), dest)

	tmpRoot := d.TempDir
	if tmpRoot == "" {
		tmpRoot = filepath.Dir(dest)
	}
	tmpDir, err := os.MkdirTemp(tmpRoot, ".learnus-hls-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	out := d.Progress
	if out == nil {
		out = io.Discard
	}
	bar := progressbar.NewOptions(len(segments),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(filepath.Base(dest)),
		progressbar.OptionSetWidth(30),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	concurrency := d.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	err = worker.Run(ctx, segments, concurrency, func(ctx context.Context, _ int, s segment) error {
		if err := d.fetchToFile(ctx, s.URL, segmentPath(tmpDir, s.Index)); err != nil {
			return err
		}
		return bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("failed to download segments: %w", err)
	}

	joined := filepath.Join(tmpDir, "joined.ts")
	if err := concat(tmpDir, len(segments), joined); err != nil {
		return err
	}

	if d.Remux == nil {
		if err := os.Rename(joined, dest); err != nil {
			return fmt.Errorf("failed to move output: %w", err)
		}
		return nil
	}
	if err := d.Remux(ctx, joined, dest); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to remux: %w", err)
	}
	return nil
}

// resolveSegments returns the absolute segment URLs of manifestURL. A master
// playlist resolves to its highest-bandwidth variant.
func (d *Downloader) resolveSegments(ctx context.Context, manifestURL string) ([]segment, error) {
	pl, base, err := d.fetchPlaylist(ctx, manifestURL)
	if err != nil {
		return nil, err
	}

	if master, ok := pl.(*m3u8.MasterPlaylist); ok {
		var best *m3u8.Variant
		for _, v := range master.Variants {
			if v != nil && (best == nil || v.Bandwidth > best.Bandwidth) {
				best = v
			}
		}
		if best == nil {
			return nil, fmt.Errorf("%s: %w", manifestURL, ErrEmptyPlaylist)
		}
		variantURL, err := resolve(base, best.URI)
		if err != nil {
			return nil, err
		}
		d.Logger.Printf("Selected variant %s (bandwidth %d)", best.URI, best.Bandwidth)
		if pl, base, err = d.fetchPlaylist(ctx, variantURL); err != nil {
			return nil, err
		}
	}

	media, ok := pl.(*m3u8.MediaPlaylist)
	if !ok {
		return nil, fmt.Errorf("%s: nested master playlist", manifestURL)
	}
	if encrypted(media.Key) {
		return nil, ErrEncryptedStream
	}

	var segments []segment
	for _, s := range media.Segments {
		if s == nil {
			continue
		}
		if encrypted(s.Key) {
			return nil, ErrEncryptedStream
		}
		u, err := resolve(base, s.URI)
		if err != nil {
			return nil, err
		}
		segments = append(segments, segment{Index: len(segments), URL: u})
	}
	if len(segments) == 0 {
		return nil, fmt.Errorf("%s: %w", manifestURL, ErrEmptyPlaylist)
	}
	return segments, nil
}

func encrypted(k *m3u8.Key) bool {
	return k != nil && k.Method != "" && !strings.EqualFold(k.Method, "NONE")
}

func (d *Downloader) fetchPlaylist(ctx context.Context, rawURL string) (m3u8.Playlist, *url.URL, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse playlist url: %w", err)
	}
	body, err := d.get(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	defer body.Close()

	pl, _, err := m3u8.DecodeFrom(body, false)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse playlist %s: %w", rawURL, err)
	}
	return pl, base, nil
}

func (d *Downloader) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}

func (d *Downloader) fetchToFile(ctx context.Context, rawURL, path string) error {
	body, err := d.get(ctx, rawURL)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create segment file: %w", err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write segment: %w", err)
	}
	return f.Close()
}

func resolve(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("failed to parse segment url %q: %w", ref, err)
	}
	return base.ResolveReference(u).String(), nil
}

func segmentPath(dir string, i int) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.ts", i))
}

func concat(dir string, n int, dst string) error {
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	for i := 0; i < n; i++ {
		in, err := os.Open(segmentPath(dir, i))
		if err != nil {
			out.Close()
			return fmt.Errorf("failed to open segment %d: %w", i, err)
		}
		_, err = io.Copy(out, in)
		in.Close()
		if err != nil {
			out.Close()
			return fmt.Errorf("failed to join segment %d: %w", i, err)
		}
	}
	return out.Close()
}

// FFmpegRemux returns a RemuxFunc backed by ffmpeg, or nil when ffmpeg is
// not on PATH.
func FFmpegRemux() RemuxFunc {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil
	}
	return func(ctx context.Context, src, dst string) error {
		cmd := exec.CommandContext(ctx, path,
			"-i", src,
			"-c", "copy",
			"-bsf:a", "aac_adtstoasc",
			"-movflags", "+faststart",
			"-y",
			dst)

		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, stderr.String())
		}
		return nil
	}
}
