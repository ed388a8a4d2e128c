// Package httpclient performs the HTTP calls issued by the request executor
// and by scripts. Two transports exist: the native net/http client and a resty
// client. One is picked at startup with Select.
package httpclient

import (
	"context"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/nettrace"
)

const (
	KindAuto   = "auto"
	KindNative = "native"
	KindResty  = "resty"
)

// DefaultTimeout bounds a single Send when the caller sets none.
const DefaultTimeout = 10 * time.Second

// Options describe one outgoing call. A nil Body sends no body.
type Options struct {
	Method  string
	Headers map[string]string
	Body    *string
	Timeout time.Duration
}

type Transport interface {
	Send(ctx context.Context, url string, opts Options) (*Response, error)
	Name() string
}

// TransportFunc adapts a function into a Transport.
type TransportFunc func(ctx context.Context, url string, opts Options) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, url string, opts Options) (*Response, error) {
	return f(ctx, url, opts)
}

func (TransportFunc) Name() string { return "func" }

// ClientOptions configure the transport chosen at startup.
type ClientOptions struct {
	Timeout            time.Duration
	FollowRedirects    bool
	InsecureSkipVerify bool
	ProxyURL           string
	UserAgent          string
}

func DefaultClientOptions() ClientOptions {
	return ClientOptions{Timeout: DefaultTimeout, FollowRedirects: true}
}

// Select builds the transport named by kind. "auto" resolves to the native
// client.
func Select(kind string, opts ClientOptions) (Transport, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", KindAuto, KindNative:
		return NewNative(opts)
	case KindResty:
		return NewResty(opts)
	default:
		return nil, errdef.New(errdef.CodeConfig, "unknown transport %q", kind)
	}
}

// Response is a fully buffered reply. Body can be read any number of times.
type Response struct {
	StatusCode   int
	StatusText   string
	Proto        string
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	EffectiveURL string
	// Timeline is nil when the transport could not trace the exchange.
	Timeline *nettrace.Timeline
}

// Status renders "200 OK".
func (r *Response) Status() string {
	if r == nil {
		return ""
	}
	if r.StatusText == "" {
		return strconv.Itoa(r.StatusCode)
	}
	return strconv.Itoa(r.StatusCode) + " " + r.StatusText
}

func (r *Response) OK() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r *Response) ContentType() string {
	if r == nil || r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}

// Pairs lists headers as lower-cased name/value pairs sorted by name.
func (r *Response) Pairs() [][2]string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Headers))
	for name := range r.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make([][2]string, 0, len(names))
	for _, name := range names {
		for _, v := range r.Headers[name] {
			pairs = append(pairs, [2]string{strings.ToLower(name), v})
		}
	}
	return pairs
}

// HeaderMap collapses repeated headers into one comma-joined value per
// lower-cased name.
func (r *Response) HeaderMap() map[string]string {
	out := make(map[string]string)
	if r == nil {
		return out
	}
	for name, values := range r.Headers {
		out[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return out
}

func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Headers = r.Headers.Clone()
	clone.Body = append([]byte(nil), r.Body...)
	clone.Timeline = r.Timeline.Clone()
	return &clone
}

// statusText strips the numeric prefix net/http puts in Status.
func statusText(code int, status string) string {
	prefix := strconv.Itoa(code)
	text := strings.TrimSpace(strings.TrimPrefix(status, prefix))
	if text == "" {
		text = http.StatusText(code)
	}
	return text
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}
