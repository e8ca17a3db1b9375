// Package platform answers whether a call runs inside the native app shell or a
// plain browser, and translates native file URIs into URLs the app webview can load.
package platform

import (
	"context"
	"net/url"
	"strings"
)

const (
	Hybrid = "hybrid"
	Web    = "web"
	Auto   = "auto"
)

// FilePathPrefix is the URL path under which translated file URIs are served
const FilePathPrefix = "/_capacitor_file_"

// Platform reports the execution context of a call
type Platform interface {
	IsNative(ctx context.Context) bool
}

// Static is a platform fixed at startup
type Static bool

// IsNative implements Platform
func (s Static) IsNative(context.Context) bool {
	return bool(s)
}

type contextKey string

const nativeKey contextKey = "native"

// WithNative records the execution context of a request
func WithNative(ctx context.Context, native bool) context.Context {
	return context.WithValue(ctx, nativeKey, native)
}

// FromContext reads the execution context recorded by WithNative.
// Calls without one are treated as browser calls.
type FromContext struct{}

// IsNative implements Platform
func (FromContext) IsNative(ctx context.Context) bool {
	native, _ := ctx.Value(nativeKey).(bool)
	return native
}

// New returns the platform for a configured mode
func New(mode string) Platform {
	switch mode {
	case Hybrid:
		return Static(true)
	case Auto:
		return FromContext{}
	default:
		return Static(false)
	}
}

// ParseHeader interprets an X-Platform header value
func ParseHeader(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case Hybrid, "native", "android", "ios":
		return true
	default:
		return false
	}
}

// FileSrcConverter turns native file URIs into webview-loadable URLs.
// With a Signer, translated URLs carry a token binding them to their file path.
type FileSrcConverter struct {
	Scheme   string
	Hostname string
	Signer   *FileSigner
}

// NewFileSrcConverter creates a converter; empty values fall back to https://localhost
func NewFileSrcConverter(scheme, hostname string) *FileSrcConverter {
	if scheme == "" {
		scheme = "https"
	}
	if hostname == "" {
		hostname = "localhost"
	}
	return &FileSrcConverter{Scheme: scheme, Hostname: hostname}
}

// ConvertFileSrc maps file:// URIs and absolute paths under FilePathPrefix on the
// app host. Other values are returned unchanged.
func (c *FileSrcConverter) ConvertFileSrc(uri string) string {
	host := c.Scheme + "://" + c.Hostname + FilePathPrefix

	var raw, filePath string
	switch {
	case strings.HasPrefix(uri, "file://"):
		raw = strings.TrimPrefix(uri, "file://")
		filePath = raw
		if u, err := url.Parse(uri); err == nil {
			filePath = u.Path
		}
	case strings.HasPrefix(uri, "/"):
		raw, filePath = uri, uri
	default:
		return uri
	}

	if c.Signer == nil {
		return host + raw
	}
	token, err := c.Signer.Sign(filePath)
	if err != nil {
		// Unsigned URLs are refused when served
		return host + raw
	}
	return host + raw + "?token=" + url.QueryEscape(token)
}
