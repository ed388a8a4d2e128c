package httpclient

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/publicsuffix"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/nettrace"
)

// NativeTransport talks to servers directly with net/http: no CORS, cookies
// kept across calls for the lifetime of the process.
type NativeTransport struct {
	client  *http.Client
	timeout time.Duration
	agent   string
}

func NewNative(opts ClientOptions) (*NativeTransport, error) {
	client, err := buildHTTPClient(opts)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &NativeTransport{client: client, timeout: timeout, agent: opts.UserAgent}, nil
}

func (t *NativeTransport) Name() string { return KindNative }

func (t *NativeTransport) Send(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if opts.Body != nil {
		body = strings.NewReader(*opts.Body)
	}
	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	trace := nettrace.NewCollector()
	ctx = httptrace.WithClientTrace(ctx, trace.ClientTrace())
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "build request")
	}
	if t.agent != "" {
		req.Header.Set("User-Agent", t.agent)
	}
	for key, value := range opts.Headers {
		if strings.EqualFold(key, "Host") {
			req.Host = value
			continue
		}
		req.Header.Set(key, value)
	}

	start := time.Now()
	httpResp, err := t.client.Do(req)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "perform request")
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	data, err := io.ReadAll(httpResp.Body)
	trace.End(nettrace.PhaseTransfer, err)
	trace.Complete()
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "read response body")
	}

	return &Response{
		StatusCode:   httpResp.StatusCode,
		StatusText:   statusText(httpResp.StatusCode, httpResp.Status),
		Proto:        httpResp.Proto,
		Headers:      httpResp.Header.Clone(),
		Body:         data,
		Duration:     time.Since(start),
		EffectiveURL: effURL(req, httpResp),
		Timeline:     trace.Timeline(),
	}, nil
}

func buildHTTPClient(opts ClientOptions) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if opts.ProxyURL != "" {
		proxyURL, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeHTTP, err, "parse proxy url")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	if opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	h2, err := http2.ConfigureTransports(transport)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "enable http2")
	}
	// ping idle h2 connections so a dead peer fails fast instead of hanging
	h2.ReadIdleTimeout = 30 * time.Second
	h2.PingTimeout = 15 * time.Second

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "create cookie jar")
	}

	client := &http.Client{Transport: transport, Jar: jar}
	if !opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client, nil
}

func effURL(req *http.Request, resp *http.Response) string {
	if resp != nil && resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	if req != nil && req.URL != nil {
		return req.URL.String()
	}
	return ""
}
