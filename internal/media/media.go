// Package media turns an alert's media reference into something the
// transport can deliver: a URL Telegram fetches itself, a local file, or an
// in-memory buffer.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/mr-karan/boxrelay/pkg/models"
)

// Modes for remote references.
const (
	ModePassthrough = "passthrough"
	ModeDownload    = "download"
)

var (
	// ErrMediaNotFound means a loopback reference points at a file that is
	// not present under the media directory.
	ErrMediaNotFound = errors.New("media not found")
	// ErrMediaFetch means a remote reference could not be retrieved.
	ErrMediaFetch = errors.New("media fetch failed")
)

// Handle is resolved media. Exactly one of URL, Path or Data is set.
type Handle struct {
	Kind     models.MediaKind
	URL      string
	Path     string
	Data     []byte
	Filename string
}

// Options configures a Resolver.
type Options struct {
	BaseDir    string
	Mode       string
	MaxBytes   int64
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Resolver maps media references to deliverable handles. It is safe for
// concurrent use.
type Resolver struct {
	baseDir  string
	mode     string
	maxBytes int64
	timeout  time.Duration
	http     *http.Client
	log      *slog.Logger
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.Mode == "" {
		opts.Mode = ModePassthrough
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 20 << 20
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Resolver{
		baseDir:  opts.BaseDir,
		mode:     opts.Mode,
		maxBytes: opts.MaxBytes,
		timeout:  opts.Timeout,
		http:     opts.HTTPClient,
		log:      opts.Logger.With("component", "media"),
	}
}

// Resolve returns nil for a nil reference. Loopback URLs and bare paths are
// looked up under the media directory.
func (r *Resolver) Resolve(ctx context.Context, ref *models.MediaReference) (*Handle, error) {
	if ref == nil {
		return nil, nil
	}
	u, err := url.Parse(ref.URL)
	if err != nil {
		return nil, errors.Mark(errors.Newf("invalid media url %q", ref.URL), ErrMediaFetch)
	}
	if u.Scheme == "" && u.Host == "" {
		return r.local(ref.Kind, u)
	}
	if u.Host == "" {
		return nil, errors.Mark(errors.Newf("invalid media url %q", ref.URL), ErrMediaFetch)
	}

	if isLoopback(u.Hostname()) {
		return r.local(ref.Kind, u)
	}
	if r.mode == ModeDownload {
		return r.download(ctx, ref.Kind, u)
	}
	return &Handle{Kind: ref.Kind, URL: ref.URL, Filename: filename(u)}, nil
}

func (r *Resolver) local(kind models.MediaKind, u *url.URL) (*Handle, error) {
	rel := strings.TrimPrefix(path.Clean("/"+u.Path), "/")
	if rel == "" || !filepath.IsLocal(filepath.FromSlash(rel)) {
		return nil, errors.Mark(errors.Newf("media path %q escapes base dir", u.Path), ErrMediaNotFound)
	}
	full := filepath.Join(r.baseDir, filepath.FromSlash(rel))

	st, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errors.Mark(errors.Wrapf(err, "stat %s", full), ErrMediaNotFound)
		}
		return nil, errors.Mark(errors.Wrapf(err, "stat %s", full), ErrMediaFetch)
	}
	if st.IsDir() {
		return nil, errors.Mark(errors.Newf("%s is a directory", full), ErrMediaNotFound)
	}
	return &Handle{Kind: kind, Path: full, Filename: filepath.Base(full)}, nil
}

func (r *Resolver) download(ctx context.Context, kind models.MediaKind, u *url.URL) (*Handle, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "build media request"), ErrMediaFetch)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "fetch media"), ErrMediaFetch)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Mark(fmt.Errorf("fetch media: http %d", resp.StatusCode), ErrMediaFetch)
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "read media"), ErrMediaFetch)
	}
	if n > r.maxBytes {
		return nil, errors.Mark(fmt.Errorf("media too large (>%d bytes)", r.maxBytes), ErrMediaFetch)
	}
	r.log.Debug("downloaded media", "url", u.Redacted(), "bytes", n)
	return &Handle{Kind: kind, Data: buf.Bytes(), Filename: filename(u)}, nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func filename(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "media"
	}
	return name
}
