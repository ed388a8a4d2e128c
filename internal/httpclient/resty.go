package httpclient

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/restpad/restpad/internal/errdef"
	"github.com/restpad/restpad/internal/nettrace"
)

// RestyTransport sends through a go-resty client. Retries stay disabled: each
// Send is exactly one attempt.
type RestyTransport struct {
	client  *resty.Client
	timeout time.Duration
}

func NewResty(opts ClientOptions) (*RestyTransport, error) {
	client := resty.New()
	client.SetRetryCount(0)
	if opts.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec
	}
	if opts.ProxyURL != "" {
		client.SetProxy(opts.ProxyURL)
	}
	if opts.UserAgent != "" {
		client.SetHeader("User-Agent", opts.UserAgent)
	}
	if opts.FollowRedirects {
		client.SetRedirectPolicy(resty.FlexibleRedirectPolicy(10))
	} else {
		client.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}))
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RestyTransport{client: client, timeout: timeout}, nil
}

func (t *RestyTransport) Name() string { return KindResty }

func (t *RestyTransport) Send(ctx context.Context, rawURL string, opts Options) (*Response, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = t.timeout
	}
	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	method := strings.ToUpper(strings.TrimSpace(opts.Method))
	if method == "" {
		method = http.MethodGet
	}

	req := t.client.R().SetContext(ctx).EnableTrace()
	if len(opts.Headers) > 0 {
		req.SetHeaders(opts.Headers)
	}
	if opts.Body != nil {
		req.SetBody(*opts.Body)
	}

	start := time.Now()
	resp, err := req.Execute(method, rawURL)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "perform request")
	}

	out := &Response{
		StatusCode:   resp.StatusCode(),
		StatusText:   statusText(resp.StatusCode(), resp.Status()),
		Proto:        resp.Proto(),
		Headers:      resp.Header().Clone(),
		Body:         append([]byte(nil), resp.Body()...),
		Duration:     resp.Time(),
		EffectiveURL: rawURL,
	}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		out.EffectiveURL = raw.Request.URL.String()
	}
	if resp.Request != nil {
		out.Timeline = restyTimeline(start, resp.Request.TraceInfo())
	}
	return out, nil
}

func restyTimeline(start time.Time, ti resty.TraceInfo) *nettrace.Timeline {
	addr := ""
	if ti.RemoteAddr != nil {
		addr = ti.RemoteAddr.String()
	}
	return nettrace.Sequential(start,
		nettrace.Phase{Kind: nettrace.PhaseDNS, Duration: ti.DNSLookup},
		nettrace.Phase{Kind: nettrace.PhaseConnect, Duration: ti.TCPConnTime, Addr: addr, Reused: ti.IsConnReused},
		nettrace.Phase{Kind: nettrace.PhaseTLS, Duration: ti.TLSHandshake},
		nettrace.Phase{Kind: nettrace.PhaseTTFB, Duration: ti.ServerTime},
		nettrace.Phase{Kind: nettrace.PhaseTransfer, Duration: ti.ResponseTime},
	)
}
