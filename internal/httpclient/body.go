package httpclient

import (
	"encoding/json"
	"strings"

	"github.com/restpad/restpad/internal/errdef"
)

// IsJSONContentType matches any content type mentioning json or javascript,
// case-insensitively (application/json, application/problem+json,
// text/javascript, ...).
func IsJSONContentType(contentType string) bool {
	lower := strings.ToLower(contentType)
	return strings.Contains(lower, "json") || strings.Contains(lower, "javascript")
}

// DecodeBody returns the parsed JSON value for JSON-ish responses and the body
// text otherwise. Invalid JSON under a JSON content type is an error.
func DecodeBody(resp *Response) (any, error) {
	if resp == nil {
		return nil, errdef.New(errdef.CodeHTTP, "no response")
	}
	if !IsJSONContentType(resp.ContentType()) {
		return string(resp.Body), nil
	}
	var value any
	if err := json.Unmarshal(resp.Body, &value); err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "decode json body")
	}
	return value, nil
}
