package execution

import (
	"strconv"

	"github.com/restpad/restpad/internal/nettrace"
)

// Status values of a synthetic result produced when no response arrived.
const (
	StatusUnavailable  = "N/A"
	StatusTextNetError = "Network Error"
)

// RequestDetails is what was actually sent after templating.
type RequestDetails struct {
	Method       string            `json:"method"`
	ProcessedURL string            `json:"processedUrl"`
	Headers      map[string]string `json:"headers"`
	Body         *string           `json:"body,omitempty"`
}

// ResponseSummary describes the received response, or the synthetic
// network-error response.
type ResponseSummary struct {
	Status     string            `json:"status"`
	StatusCode int               `json:"statusCode"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
}

// OK reports a 2xx response.
func (r ResponseSummary) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Result is the outcome of one pipeline run. Every run yields one, including
// runs whose request never reached a server.
type Result struct {
	RequestDetails RequestDetails  `json:"requestDetails"`
	Response       ResponseSummary `json:"response"`
	ResponseData   any             `json:"responseData"`
	ScriptOutput   string          `json:"scriptOutput"`
	ProcessedURL   string          `json:"processedUrl"`
	DurationMs     float64         `json:"durationMs"`

	// Err is the send or parse failure behind a synthetic result.
	Err error `json:"-"`
	// Body is the raw response body, nil for synthetic results.
	Body []byte `json:"-"`
	// Timing breaks the exchange into network phases when traced.
	Timing *nettrace.Timeline `json:"-"`
}

// Failed reports whether the result is synthetic.
func (r *Result) Failed() bool {
	return r != nil && r.Err != nil
}

func receivedSummary(code int, text string, headers map[string]string) ResponseSummary {
	return ResponseSummary{
		Status:     strconv.Itoa(code),
		StatusCode: code,
		StatusText: text,
		Headers:    headers,
	}
}

func networkErrorSummary() ResponseSummary {
	return ResponseSummary{
		Status:     StatusUnavailable,
		StatusText: StatusTextNetError,
		Headers:    map[string]string{},
	}
}
