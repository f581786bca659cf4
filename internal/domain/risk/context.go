package risk

import "strings"

// RequestContext carries the request metadata the escrow caller captured.
// Only non-sensitive headers are ever inspected; Cookie and Authorization
// are stripped at construction so they cannot leak into fingerprints,
// factors or alert metadata.
type RequestContext struct {
	ClientIP  string
	UserAgent string
	Headers   map[string]string
}

// sensitiveHeaders are never retained.
var sensitiveHeaders = map[string]bool{
	"cookie":              true,
	"authorization":       true,
	"proxy-authorization": true,
	"x-api-key":           true,
}

// NewRequestContext builds a sanitized context from raw header values.
// Header names are lower-cased for lookup.
func NewRequestContext(clientIP, userAgent string, headers map[string]string) *RequestContext {
	clean := make(map[string]string, len(headers))
	for k, v := range headers {
		name := strings.ToLower(k)
		if sensitiveHeaders[name] {
			continue
		}
		clean[name] = v
	}
	return &RequestContext{
		ClientIP:  clientIP,
		UserAgent: userAgent,
		Headers:   clean,
	}
}

// Header returns a header value by lower-case name.
func (rc *RequestContext) Header(name string) string {
	if rc == nil || rc.Headers == nil {
		return ""
	}
	return rc.Headers[strings.ToLower(name)]
}
