package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"laser-vision-backend/internal/models"
	"laser-vision-backend/internal/platform"
	"laser-vision-backend/internal/storage"

	"golang.org/x/time/rate"
)

var (
	ErrMissingPath       = errors.New("photo has no native path")
	ErrMissingWebPath    = errors.New("photo has no web path")
	ErrFetchFailed       = errors.New("failed to fetch photo")
	ErrAddressNotAllowed = errors.New("address is not allowed")
)

// ImageSource yields the bytes of a captured photo and the reference to display
// once it has been written.
type ImageSource interface {
	ReadBase64(ctx context.Context) (string, error)
	DisplayPath(savedURI string) string
}

// CaptureDirectory is the area native capture paths are read from
const CaptureDirectory = storage.DirectoryCache

// NativeFile is a photo in the capture area
type NativeFile struct {
	Path      string
	fs        storage.Filesystem
	converter *platform.FileSrcConverter
}

// ReadBase64 reads the file at Path, relative to the capture area
func (n *NativeFile) ReadBase64(ctx context.Context) (string, error) {
	data, err := n.fs.ReadFile(ctx, n.Path, CaptureDirectory)
	if err != nil {
		return "", fmt.Errorf("failed to read photo file: %w", err)
	}
	return data, nil
}

// DisplayPath translates the written file's URI for the webview
func (n *NativeFile) DisplayPath(savedURI string) string {
	return n.converter.ConvertFileSrc(savedURI)
}

// WebResource is a photo reachable through a URL or data URI
type WebResource struct {
	WebPath string
	fetcher *Fetcher
}

// ReadBase64 fetches WebPath and converts the body to base64
func (w *WebResource) ReadBase64(ctx context.Context) (string, error) {
	return w.fetcher.FetchBase64(ctx, w.WebPath)
}

// DisplayPath returns the original web path
func (w *WebResource) DisplayPath(string) string {
	return w.WebPath
}

// Fetcher downloads web photo paths. Unless private networks are allowed it
// refuses to connect to loopback, private and link-local addresses.
type Fetcher struct {
	client       *http.Client
	limiter      *rate.Limiter
	allowedHosts map[string]bool
	allowPrivate bool
}

// FetcherOption configures a Fetcher
type FetcherOption func(*Fetcher)

// AllowedHosts restricts fetches to the given hostnames. An empty list allows any public host.
func AllowedHosts(hosts []string) FetcherOption {
	return func(f *Fetcher) {
		for _, h := range hosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				f.allowedHosts[h] = true
			}
		}
	}
}

// AllowPrivateNetworks lets the fetcher reach loopback and private addresses
func AllowPrivateNetworks(allow bool) FetcherOption {
	return func(f *Fetcher) { f.allowPrivate = allow }
}

// NewFetcher creates a fetcher with a request timeout and an outbound rate limit
func NewFetcher(timeout time.Duration, perSecond float64, burst int, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		limiter:      rate.NewLimiter(rate.Limit(perSecond), burst),
		allowedHosts: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(f)
	}

	dialer := &net.Dialer{Timeout: timeout, Control: f.checkAddress}
	f.client = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext:         dialer.DialContext,
			TLSHandshakeTimeout: timeout,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return f
}

// FetchBase64 returns the content behind webPath as base64.
// data: URIs are decoded without a network round trip.
func (f *Fetcher) FetchBase64(ctx context.Context, webPath string) (string, error) {
	if strings.HasPrefix(webPath, "data:") {
		return dataURIPayload(webPath)
	}

	u, err := url.Parse(webPath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: %w: unsupported scheme %q", ErrFetchFailed, ErrAddressNotAllowed, u.Scheme)
	}
	if len(f.allowedHosts) > 0 && !f.allowedHosts[strings.ToLower(u.Hostname())] {
		return "", fmt.Errorf("%w: %w: host %s", ErrFetchFailed, ErrAddressNotAllowed, u.Hostname())
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}

	return storage.EncodeData(body), nil
}

// checkAddress runs on every dial, after name resolution and on each redirect
func (f *Fetcher) checkAddress(network, address string, _ syscall.RawConn) error {
	if f.allowPrivate {
		return nil
	}

	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}

	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return fmt.Errorf("%w: %s", ErrAddressNotAllowed, ip)
	}
	return nil
}

func dataURIPayload(uri string) (string, error) {
	comma := strings.Index(uri, ",")
	if comma < 0 {
		return "", fmt.Errorf("%w: malformed data URI", ErrFetchFailed)
	}

	header, payload := uri[:comma], uri[comma+1:]
	if strings.HasSuffix(header, ";base64") {
		return payload, nil
	}

	raw, err := url.PathUnescape(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return storage.EncodeData([]byte(raw)), nil
}

// SourceFor picks the image source for a captured photo in the given context
func (s *PhotoService) SourceFor(photo models.CapturedPhoto, native bool) (ImageSource, error) {
	if native {
		if photo.Path == "" {
			return nil, ErrMissingPath
		}
		return &NativeFile{Path: photo.Path, fs: s.fs, converter: s.converter}, nil
	}

	if photo.WebPath == "" {
		return nil, ErrMissingWebPath
	}
	return &WebResource{WebPath: photo.WebPath, fetcher: s.fetcher}, nil
}
